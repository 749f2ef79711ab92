package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/mhersta/conveyor/pkg/api"
)

// HTTPDoer is the slice of *http.Client the webhook handler needs. The
// caller supplies the client and with it any timeout; a timeout surfaces as
// a context deadline error, which classifies as a timeout.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhook response bodies larger than this are truncated in the result.
const maxWebhookBody = 64 << 10

// NewWebhookHandler returns the handler for call_webhook actions.
// Required config: url. Optional: method (default POST), body, headers.
//
// A non-2xx response fails with an *api.HTTPError preserving the status
// code and status text.
func NewWebhookHandler(client HTTPDoer) Handler {
	return HandlerFunc(func(ctx context.Context, config, trigger map[string]any) (any, error) {
		url, err := stringField("call_webhook", config, "url")
		if err != nil {
			return nil, err
		}
		method := optionalStringField(config, "method", http.MethodPost)

		var reqBody io.Reader
		if body, ok := config["body"]; ok && body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reqBody = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range mapField(config, "headers") {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &api.HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
			}
		}

		result := map[string]any{"status_code": resp.StatusCode}
		var decoded any
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &decoded); err != nil {
				decoded = string(respBody)
			}
			result["body"] = decoded
		}
		return result, nil
	})
}
