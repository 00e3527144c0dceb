// Package transport implements the streaming HTTP transport for the chat
// backend: it opens the long-lived /chat/stream request and yields its raw
// byte chunks.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/loomlabs/loom"
)

const streamPath = "/chat/stream"

// Interface compliance check.
var _ loom.Transport = (*Client)(nil)

// Client implements [loom.Transport] against the chat backend.
type Client struct {
	baseURL    string
	creds      loom.CredentialSource
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the backend base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new [Client] with the given credential source and options.
func New(creds loom.CredentialSource, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open establishes the streaming request and returns the chunk stream.
// It fails fast with [loom.ErrNoCredential] before any network I/O when no
// bearer token is available. A non-success status yields a
// [*loom.TransportError]; a response without a readable body yields
// [loom.ErrMissingBody]. None of these are retried here — retry policy
// belongs to the caller.
func (c *Client) Open(ctx context.Context, req loom.Request) (loom.ChunkStream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	token, ok := c.creds.Token()
	if !ok {
		return nil, fmt.Errorf("transport: %w", loom.ErrNoCredential)
	}

	body, err := json.Marshal(wireRequest{
		Message:   req.Message,
		ThreadID:  req.ThreadID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &loom.TransportError{StatusCode: resp.StatusCode}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("transport: %w", loom.ErrMissingBody)
	}

	return newChunkStream(ctx, resp.Body, charsetOf(resp)), nil
}

// wireRequest is the JSON body of the outbound streaming request.
type wireRequest struct {
	Message   string `json:"message"`
	ThreadID  string `json:"thread_id"`
	SessionID string `json:"session_id"`
}

// charsetOf extracts the charset parameter from the response Content-Type.
// Empty means the decoder's UTF-8 default applies.
func charsetOf(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}
