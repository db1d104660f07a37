package requester

import (
	"context"
	"net/http"
)

// Request represents a fully built HTTP request
type Request struct {
	URL         string
	Method      string
	ContentType string
	HttpRequest *http.Request
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Task is a relay call running in the background. Its result is readable
// once Done is closed.
type Task struct {
	done chan struct{}
	resp *Response
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) finish(resp *Response, err error) {
	t.resp, t.err = resp, err
	close(t.done)
}

// Done is closed when the call has completed
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the call completes or ctx is done
func (t *Task) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-t.done:
		return t.resp, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
