// Package client is a Go SDK for spec §6's HTTP surface, used by
// internal/cli and available to external callers that would rather
// import a typed client than hand-build requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running verifyd server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New builds a Client against baseURL, defaulting the HTTP timeout to 30s.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// FileInput is one file submitted to /verify or /session/input-files.
type FileInput struct {
	Content string `json:"content"`
	Base64  bool   `json:"base64,omitempty"`
}

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	Address        string               `json:"address"`
	Chain          string               `json:"chain"`
	ChosenContract string               `json:"chosenContract,omitempty"`
	CreatorTxHash  string               `json:"creatorTxHash,omitempty"`
	Files          map[string]FileInput `json:"files"`
}

// ResultEntry mirrors the transport layer's resultEntry.
type ResultEntry struct {
	Address          string            `json:"address"`
	ChainID          string            `json:"chainId"`
	Status           string            `json:"status"`
	StorageTimestamp string            `json:"storageTimestamp,omitempty"`
	LibraryMap       map[string]string `json:"libraryMap,omitempty"`
	Message          string            `json:"message,omitempty"`
}

// VerifyResponse is the body of POST /verify's response.
type VerifyResponse struct {
	Result []ResultEntry `json:"result"`
}

// apiError is the shape of an error response across every endpoint.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error.Message)
		}
		return fmt.Errorf("%s: %s", resp.Status, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Verify calls POST /verify.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewSession calls POST /session and returns the minted session id.
func (c *Client) NewSession(ctx context.Context) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodPost, "/session", nil, &out); err != nil {
		return "", err
	}
	return out["sessionId"], nil
}

// SessionSnapshot mirrors internal/session.Snapshot.
type SessionSnapshot struct {
	Contracts map[string]struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
		Missing int    `json:"missingCount"`
		Invalid int    `json:"invalidCount"`
	} `json:"contracts"`
	UnusedSources []string `json:"unusedSources"`
}

// SessionInputFiles calls POST /session/input-files.
func (c *Client) SessionInputFiles(ctx context.Context, sessionID string, files map[string]FileInput) (*SessionSnapshot, error) {
	body := map[string]any{"sessionId": sessionID, "files": files}
	var out SessionSnapshot
	if err := c.do(ctx, http.MethodPost, "/session/input-files", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionTarget is one verification target for /session/verify-contracts.
type SessionTarget struct {
	Address       string `json:"address"`
	ChainID       string `json:"chainId"`
	CreatorTxHash string `json:"creatorTxHash,omitempty"`
}

// SessionVerifyContracts calls POST /session/verify-contracts.
func (c *Client) SessionVerifyContracts(ctx context.Context, sessionID string, targets map[string]SessionTarget) (*SessionSnapshot, error) {
	body := map[string]any{"sessionId": sessionID, "contracts": targets}
	var out SessionSnapshot
	if err := c.do(ctx, http.MethodPost, "/session/verify-contracts", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ChainEntry mirrors the transport layer's chainListEntry.
type ChainEntry struct {
	ChainID string `json:"chainId"`
	Name    string `json:"name"`
}

// Chains calls GET /chains.
func (c *Client) Chains(ctx context.Context) ([]ChainEntry, error) {
	var out []ChainEntry
	if err := c.do(ctx, http.MethodGet, "/chains", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
