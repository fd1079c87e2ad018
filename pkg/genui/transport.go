package genui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/unfazed-dev/genui/pkg/models"
)

// transport opens one streaming request and delivers framing events. The
// returned channel closes when the upstream stream ends; terminal failures
// arrive as error framing events.
type transport interface {
	stream(ctx context.Context, req *models.ApiRequest) (<-chan map[string]any, error)
	close() error
}

// directTransport drives the LLM endpoint's native streaming call and
// converts the SDK's typed events into the framing-map shape the parser
// consumes.
type directTransport struct {
	client anthropic.Client
	model  string
}

func newDirectTransport(config Config) (*directTransport, error) {
	if config.APIKey == "" {
		return nil, errors.New("genui: API key is required for direct mode")
	}
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	return &directTransport{
		client: anthropic.NewClient(options...),
		model:  config.Model,
	}, nil
}

func (t *directTransport) stream(ctx context.Context, req *models.ApiRequest) (<-chan map[string]any, error) {
	params, err := t.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := t.client.Messages.NewStreaming(ctx, params)
	frames := make(chan map[string]any)

	go func() {
		defer close(frames)
		for stream.Next() {
			event := stream.Current()
			frame := map[string]any{}
			if err := json.Unmarshal([]byte(event.RawJSON()), &frame); err != nil {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case frames <- frame:
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case <-ctx.Done():
			case frames <- errorFrame(classifyTransportError(err)):
			}
		}
	}()

	return frames, nil
}

func (t *directTransport) buildParams(req *models.ApiRequest) (anthropic.MessageNewParams, error) {
	messages, err := toSDKMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	model := req.Model
	if model == "" {
		model = t.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := toSDKTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if req.TopK != nil {
		params.TopK = anthropic.Int(int64(*req.TopK))
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	return params, nil
}

func (t *directTransport) close() error { return nil }

// toSDKMessages converts wire messages to SDK message params.
func toSDKMessages(messages []models.WireMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion

		switch content := msg.Content.(type) {
		case string:
			blocks = append(blocks, anthropic.NewTextBlock(content))
		case []map[string]any:
			for _, block := range content {
				converted, err := toSDKBlock(block)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, converted)
			}
		default:
			return nil, fmt.Errorf("genui: unsupported wire content type %T", msg.Content)
		}

		if msg.Role == string(models.RoleAssistant) {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func toSDKBlock(block map[string]any) (anthropic.ContentBlockParamUnion, error) {
	blockType, _ := block["type"].(string)
	switch blockType {
	case "text":
		text, _ := block["text"].(string)
		return anthropic.NewTextBlock(text), nil

	case "tool_use":
		id, _ := block["id"].(string)
		name, _ := block["name"].(string)
		return anthropic.NewToolUseBlock(id, block["input"], name), nil

	case "tool_result":
		id, _ := block["tool_use_id"].(string)
		content, _ := block["content"].(string)
		isError, _ := block["is_error"].(bool)
		return anthropic.NewToolResultBlock(id, content, isError), nil

	case "image":
		source, _ := block["source"].(map[string]any)
		sourceType, _ := source["type"].(string)
		if sourceType == "url" {
			url, _ := source["url"].(string)
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{
				Type: "url",
				URL:  url,
			}), nil
		}
		mediaType, _ := source["media_type"].(string)
		data, _ := source["data"].(string)
		return anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
			Type:      "base64",
			MediaType: anthropic.Base64ImageSourceMediaType(mediaType),
			Data:      data,
		}), nil

	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("genui: unsupported content block type %q", blockType)
	}
}

// toSDKTools converts tool schemas to SDK tool params.
func toSDKTools(tools []models.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, models.WrapError(models.ErrorToolConversion,
				"invalid input schema for "+tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, models.WrapError(models.ErrorToolConversion,
				"invalid input schema for "+tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, models.NewError(models.ErrorToolConversion,
				"invalid tool definition for "+tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// classifyTransportError maps SDK and I/O errors onto the taxonomy.
func classifyTransportError(err error) *models.GenUIError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		retryAfter := time.Duration(0)
		if apiErr.Response != nil {
			retryAfter = retryAfterFromHeader(apiErr.Response.Header.Get("retry-after"))
		}
		return models.ErrorFromStatus(apiErr.StatusCode, err.Error(), retryAfter)
	}
	return models.ClassifyError(err)
}

func retryAfterFromHeader(value string) time.Duration {
	if value == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(value, "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// errorFrame synthesizes an error framing event from a typed error so
// transport failures flow through the same parser path as upstream
// error events.
func errorFrame(err *models.GenUIError) map[string]any {
	errType := "stream_error"
	switch err.Kind {
	case models.ErrorRateLimit:
		errType = "rate_limit_error"
	case models.ErrorServer:
		errType = "api_error"
	case models.ErrorTimeout:
		errType = "timeout_error"
	case models.ErrorAuthentication:
		errType = "authentication_error"
	case models.ErrorValidation:
		errType = "invalid_request_error"
	case models.ErrorNetwork:
		errType = "network_error"
	}
	body := map[string]any{"type": errType, "message": err.Message}
	if err.RetryAfter > 0 {
		body["retry_after"] = err.RetryAfter.Seconds()
	}
	if err.HTTPStatus > 0 {
		body["status"] = float64(err.HTTPStatus)
	}
	return map[string]any{"type": "error", "error": body}
}
