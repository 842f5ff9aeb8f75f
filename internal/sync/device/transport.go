package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	pkgerrors "github.com/playpasshq/playpass-backend/pkg/errors"
)

// Transport delivers a batch to the server and returns its acks.
type Transport interface {
	Send(ctx context.Context, req syncpkg.BatchRequest) (*syncpkg.BatchResponse, error)
}

// HTTPTransport posts batches to the server's sync endpoint, authenticated
// with the device token.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport builds a transport with a bounded per-request timeout.
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req syncpkg.BatchRequest) (*syncpkg.BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding batch")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/sync", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "posting batch")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("sync endpoint returned %d: %s", resp.StatusCode, string(payload)))
	}

	var out struct {
		Data syncpkg.BatchResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding batch response")
	}
	return &out.Data, nil
}
