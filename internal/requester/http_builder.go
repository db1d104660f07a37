package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brizzai/oidc-sample/internal/config"
)

// HTTPRequestBuilder builds relay requests to the configured target
type HTTPRequestBuilder struct {
	targetURL string
	method    string
}

// NewHTTPRequestBuilder creates a builder for POST requests to cfg.TargetURL
func NewHTTPRequestBuilder(cfg *config.RelayConfig) *HTTPRequestBuilder {
	return &HTTPRequestBuilder{
		targetURL: cfg.TargetURL,
		method:    http.MethodPost,
	}
}

// BuildRequest builds an authenticated JSON request. A nil body sends no
// payload.
func (b *HTTPRequestBuilder) BuildRequest(ctx context.Context, auth AuthManager, body interface{}) (*Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, b.method, b.targetURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if err := auth.ApplyAuth(httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply authentication: %w", err)
	}

	return &Request{
		URL:         b.targetURL,
		Method:      b.method,
		ContentType: "application/json",
		HttpRequest: httpReq,
	}, nil
}
