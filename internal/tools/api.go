package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	httpResponseCap = 32 * 1024
	// waitCap bounds the wait tool so a bad argument cannot stall a lane.
	waitCap = 10 * time.Second
)

// RegisterAPITools registers the builtin non-phone tools.
func RegisterAPITools(r *Registry) {
	r.Register(NewHTTPRequestTool(nil))
	r.Register(NewWaitTool())
}

// HTTPRequestTool performs an HTTP request against an external API.
type HTTPRequestTool struct {
	client *http.Client
}

// NewHTTPRequestTool creates the tool; a nil client uses a 30s-timeout default.
func NewHTTPRequestTool(client *http.Client) *HTTPRequestTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRequestTool{client: client}
}

func (t *HTTPRequestTool) Name() string { return "http_request" }

func (t *HTTPRequestTool) Description() string {
	return "Perform an HTTP request (GET/POST/PUT/DELETE) against a URL and return the response body."
}

func (t *HTTPRequestTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":    map[string]any{"type": "string"},
			"method": map[string]any{"type": "string", "description": "HTTP method, default GET"},
			"body":   map[string]any{"type": "string", "description": "Request body for POST/PUT"},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers as key/value pairs",
			},
		},
		"required": []string{"url"},
	}
}

func (t *HTTPRequestTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	url := GetString(params, "url", "")
	if url == "" {
		return Errorf("http_request requires a url"), nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Errorf("http_request url must start with http:// or https://"), nil
	}
	method := strings.ToUpper(GetString(params, "method", "GET"))

	var body io.Reader
	if b := GetString(params, "body", ""); b != "" {
		body = strings.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return ErrorResult(err), nil
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(err), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpResponseCap))
	if err != nil {
		return ErrorResult(err), nil
	}
	return TextResult(fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, string(data))), nil
}

// WaitTool pauses execution, for UI transitions that need settling time.
type WaitTool struct{}

func NewWaitTool() *WaitTool { return &WaitTool{} }

func (t *WaitTool) Name() string { return "wait" }

func (t *WaitTool) Description() string {
	return "Wait for a number of milliseconds (max 10000), e.g. for an app screen to settle."
}

func (t *WaitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ms": map[string]any{"type": "integer", "description": "Milliseconds to wait"},
		},
		"required": []string{"ms"},
	}
}

func (t *WaitTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	ms := GetInt(params, "ms", 0)
	if ms <= 0 {
		return Errorf("wait requires a positive ms value"), nil
	}
	d := time.Duration(ms) * time.Millisecond
	if d > waitCap {
		d = waitCap
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ErrorResult(ctx.Err()), nil
	}
	return TextResult(fmt.Sprintf("Waited %dms", d.Milliseconds())), nil
}
