package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// maxResponseBody caps how much of a relay response is buffered
const maxResponseBody = 1 << 20

// HTTPRequester executes relay requests
type HTTPRequester struct {
	client  *http.Client
	builder *HTTPRequestBuilder
}

// NewHTTPRequester creates a requester with a pooled client bounded by
// cfg.Timeout
func NewHTTPRequester(cfg *config.RelayConfig, builder *HTTPRequestBuilder) *HTTPRequester {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = cfg.Timeout
	return &HTTPRequester{
		client:  client,
		builder: builder,
	}
}

// Do builds and executes a relay request synchronously
func (r *HTTPRequester) Do(ctx context.Context, auth AuthManager, body interface{}) (*Response, error) {
	req, err := r.builder.BuildRequest(ctx, auth, body)
	if err != nil {
		return nil, err
	}
	logger.Info("Relaying request", zap.String("method", req.Method), zap.String("url", req.URL))

	resp, err := r.execute(req)
	if err != nil {
		logger.Error("Relay request failed", zap.Error(err))
		return nil, err
	}

	logger.Info("Relay response",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", resp.Body),
	)
	return resp, nil
}

// Dispatch starts the relay call in the background
func (r *HTTPRequester) Dispatch(ctx context.Context, auth AuthManager, body interface{}) *Task {
	task := newTask()
	go func() {
		task.finish(r.Do(ctx, auth, body))
	}()
	return task
}

// execute performs the actual HTTP request execution
func (r *HTTPRequester) execute(req *Request) (*Response, error) {
	resp, err := r.client.Do(req.HttpRequest)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}
