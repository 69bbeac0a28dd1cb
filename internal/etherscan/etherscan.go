// Package etherscan implements the "verify from block explorer" path of
// spec §6's POST /verify/etherscan: given an address and a chain's
// explorer API key, fetch the already-published source and metadata and
// hand it back in the same InputFile shape the upload path uses, so it
// can run through the normal ContractChecker / BytecodeMatcher
// pipeline. Built in the same net/http-with-timeout style as
// internal/fetch's GatewayFetcher since the pack carries no dedicated
// explorer client.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainproof/verify/internal/checker"
	"github.com/chainproof/verify/internal/verifyerr"
)

// Client fetches verified source from an Etherscan-compatible explorer
// API (getsourcecode action).
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New builds a Client, defaulting the HTTP client timeout to 10s.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceResult struct {
	SourceCode           string `json:"SourceCode"`
	ContractName         string `json:"ContractName"`
	CompilerVersion      string `json:"CompilerVersion"`
	OptimizationUsed     string `json:"OptimizationUsed"`
	Runs                 string `json:"Runs"`
	ConstructorArguments string `json:"ConstructorArguments"`
	ABI                  string `json:"ABI"`
}

// multiFileSource is the shape Etherscan wraps SourceCode in for
// multi-file submissions: a JSON object whose SourceCode field is
// itself `{...}` wrapped source, or `{{...}}` double-wrapped standard
// JSON input.
type multiFileSource struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
}

// FetchSource implements spec §4.7 step 3's "verify from explorer"
// fallback: retrieve the contract's published source files so they can
// be run through the same checker/matcher pipeline as an upload.
func (c *Client) FetchSource(ctx context.Context, address string) ([]checker.InputFile, error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindFetchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, verifyerr.New(verifyerr.KindFetchUnavailable, fmt.Sprintf("explorer returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, verifyerr.New(verifyerr.KindFetchPermanent, fmt.Sprintf("explorer returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindFetchUnavailable, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindBadMetadata, err)
	}

	var results []sourceResult
	if err := json.Unmarshal(env.Result, &results); err != nil || len(results) == 0 {
		return nil, verifyerr.New(verifyerr.KindBadMetadata, "explorer returned no source for address")
	}
	r := results[0]
	if r.SourceCode == "" {
		return nil, verifyerr.New(verifyerr.KindBadMetadata, "contract is not verified on the explorer")
	}

	return explodeSource(r.ContractName, r.SourceCode), nil
}

// explodeSource turns Etherscan's SourceCode encoding into discrete
// InputFiles: single-file raw Solidity, or the double-brace-wrapped
// multi-file JSON form.
func explodeSource(contractName, raw string) []checker.InputFile {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := trimmed[1 : len(trimmed)-1]
		var mf multiFileSource
		if json.Unmarshal([]byte(inner), &mf) == nil && len(mf.Sources) > 0 {
			files := make([]checker.InputFile, 0, len(mf.Sources))
			for path, src := range mf.Sources {
				files = append(files, checker.InputFile{Path: path, Content: []byte(src.Content)})
			}
			return files
		}
	}

	name := contractName
	if name == "" {
		name = "Contract"
	}
	return []checker.InputFile{{Path: name + ".sol", Content: []byte(raw)}}
}
