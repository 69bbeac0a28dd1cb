package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/chainproof/verify/internal/observability/metrics"
	"github.com/chainproof/verify/internal/verifyerr"
)

// RemoteDriver invokes a compiler-as-a-function HTTP endpoint, matching
// spec §4.4's remote-function implementation. The two Driver
// implementations are interchangeable from the caller's perspective.
type RemoteDriver struct {
	URL    string
	Client *http.Client
}

// NewRemoteDriver builds a RemoteDriver posting to url.
func NewRemoteDriver(url string) *RemoteDriver {
	return &RemoteDriver{URL: url, Client: http.DefaultClient}
}

type remoteRequest struct {
	Version string             `json:"version"`
	Input   StandardJSONInput `json:"input"`
}

// Compile implements Driver.
func (d *RemoteDriver) Compile(ctx context.Context, version string, input StandardJSONInput) (*StandardJSONOutput, error) {
	body, err := json.Marshal(remoteRequest{Version: version, Input: input})
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		metrics.RecordCompilerInvocation("remote", "unavailable")
		return nil, verifyerr.New(verifyerr.KindCompilerUnavailable, fmt.Sprintf("remote compiler unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.RecordCompilerInvocation("remote", "unavailable")
		return nil, verifyerr.New(verifyerr.KindCompilerUnavailable, fmt.Sprintf("solc %s not installable remotely", version))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.RecordCompilerInvocation("remote", "error")
		return nil, verifyerr.New(verifyerr.KindCompilerError, fmt.Sprintf("remote compiler returned %d: %s", resp.StatusCode, respBody))
	}

	var out StandardJSONOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordCompilerInvocation("remote", "error")
		return nil, verifyerr.Wrap(verifyerr.KindCompilerError, err)
	}
	for _, e := range out.Errors {
		if e.IsFatal() {
			metrics.RecordCompilerInvocation("remote", "error")
			return &out, verifyerr.New(verifyerr.KindCompilerError, e.Message)
		}
	}
	metrics.RecordCompilerInvocation("remote", "success")
	return &out, nil
}

func (d *RemoteDriver) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}
