package etherscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchSourceSingleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","message":"OK","result":[{"SourceCode":"contract Foo {}","ContractName":"Foo"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	files, err := c.FetchSource(context.Background(), "0x1234567890123456789012345678901234567890")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "Foo.sol", files[0].Path)
}

func TestFetchSourceMultiFile(t *testing.T) {
	raw := `{{"sources":{"Foo.sol":{"content":"contract Foo {}"},"Bar.sol":{"content":"contract Bar {}"}}}}`
	quoted, err := json.Marshal(raw)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","message":"OK","result":[{"SourceCode":` + string(quoted) + `,"ContractName":"Foo"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	files, err := c.FetchSource(context.Background(), "0x1234567890123456789012345678901234567890")
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestFetchSourceNotVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":[{"SourceCode":""}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.FetchSource(context.Background(), "0x1234567890123456789012345678901234567890")
	require.Error(t, err)
}

func TestFetchSourceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.FetchSource(context.Background(), "0x1234567890123456789012345678901234567890")
	require.Error(t, err)
}
