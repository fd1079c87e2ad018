package genui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/unfazed-dev/genui/pkg/models"
)

// sseDonePayload is the sentinel the proxy sends after the last event.
const sseDonePayload = "[DONE]"

// proxyTransport POSTs the request as JSON to an SSE-forwarding proxy and
// decodes the returned event stream into framing events.
type proxyTransport struct {
	endpoint   string
	authToken  string
	headers    map[string]string
	httpClient *http.Client
}

func newProxyTransport(config Config) *proxyTransport {
	return &proxyTransport{
		endpoint:  config.ProxyEndpoint,
		authToken: config.AuthToken,
		headers:   config.Headers,
		// Per-request deadlines come from the caller's context; the
		// client itself stays unbounded so long streams are not cut off.
		httpClient: &http.Client{},
	}
}

type proxyRequestBody struct {
	Messages      []models.WireMessage `json:"messages"`
	MaxTokens     int                  `json:"max_tokens"`
	Stream        bool                 `json:"stream"`
	System        string               `json:"system,omitempty"`
	Tools         []models.ToolSchema  `json:"tools,omitempty"`
	Model         string               `json:"model,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	TopP          *float64             `json:"top_p,omitempty"`
	TopK          *int                 `json:"top_k,omitempty"`
	StopSequences []string             `json:"stop_sequences,omitempty"`
}

func (t *proxyTransport) stream(ctx context.Context, req *models.ApiRequest) (<-chan map[string]any, error) {
	body := proxyRequestBody{
		Messages:      req.Messages,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		System:        req.System,
		Tools:         req.Tools,
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, models.WrapError(models.ErrorValidation, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, models.WrapError(models.ErrorValidation, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if t.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.authToken)
	}
	for key, value := range t.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.ClassifyError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		message := readErrorBody(resp.Body)
		retryAfter := retryAfterFromHeader(resp.Header.Get("Retry-After"))
		return nil, models.ErrorFromStatus(resp.StatusCode, message, retryAfter)
	}

	frames := make(chan map[string]any)
	go func() {
		defer close(frames)
		defer resp.Body.Close()

		emit := func(frame map[string]any) bool {
			select {
			case <-ctx.Done():
				return false
			case frames <- frame:
				return true
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				// Blank separators, comments, and event/id/retry lines.
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == sseDonePayload {
				continue
			}

			frame := map[string]any{}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				if !emit(errorFrame(models.NewError(models.ErrorStream, "malformed SSE line: "+err.Error()))) {
					return
				}
				continue
			}
			if !emit(frame) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(errorFrame(models.ClassifyError(err)))
		}
	}()

	return frames, nil
}

func (t *proxyTransport) close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// readErrorBody extracts a useful message from an error response,
// preferring the upstream's error.message field.
func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil || len(raw) == 0 {
		return "request failed"
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
