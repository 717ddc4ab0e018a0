package capability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/driftflow/driftflow/internal/codec"
)

// HTTPProvider performs http operations for action nodes.
type HTTPProvider struct {
	client *http.Client
}

func NewHTTPProvider() *HTTPProvider {
	return &HTTPProvider{client: &http.Client{Timeout: 30 * time.Second}}
}

func (p *HTTPProvider) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Target == "" {
		return nil, fmt.Errorf("operation %s requires a target url", req.Operation)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Payload != nil {
		raw, err := codec.Marshal(req.Payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.Target, body)
	if err != nil {
		return nil, err
	}
	if req.Payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"status": resp.StatusCode}
	var decoded any
	if len(raw) > 0 {
		if err := codec.Unmarshal(raw, &decoded); err == nil {
			data["body"] = decoded
		} else {
			data["body"] = string(raw)
		}
	}
	if resp.StatusCode >= 400 {
		return &Result{Data: data}, fmt.Errorf("http %s %s returned status %d", method, req.Target, resp.StatusCode)
	}
	return &Result{Data: data}, nil
}
