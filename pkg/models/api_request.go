package models

// WireMessage is one message in the upstream request body. Content is a
// plain string for text-only messages, or a list of content-block maps
// when the message carries tool calls, tool results, or images.
type WireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ApiRequest is the assembled upstream request.
type ApiRequest struct {
	Messages      []WireMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens"`
	System        string        `json:"system,omitempty"`
	Tools         []ToolSchema  `json:"tools,omitempty"`
	Model         string        `json:"model,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	TopK          *int          `json:"top_k,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}
