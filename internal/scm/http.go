package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

// httpDoer is satisfied by *http.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is returned for any non-success source-control response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected response. URL %s. Code %d. Message %s", e.URL, e.StatusCode, e.Body)
}

// requester sends authenticated JSON requests.
type requester struct {
	client httpDoer
	token  string
	log    *zap.Logger
}

func newRequester(token string, o options) *requester {
	client := o.client
	if client == nil {
		client = &http.Client{}
	}
	return &requester{client: client, token: token, log: o.log}
}

// do sends payload (if any) as JSON and decodes a 2xx response into out
// (if non-nil). It returns the response headers.
func (r *requester) do(ctx context.Context, method, url string, payload, out any) (http.Header, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("User-Agent", model.UserAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.log.Warn("closing response body", zap.Error(err), zap.String("url", url))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	r.log.Debug("scm request", zap.String("method", method), zap.String("url", url), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("decoding response from %s: %w", url, err)
		}
	}
	return resp.Header, nil
}
