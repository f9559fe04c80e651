// Package llm talks to OpenAI-compatible APIs for chat completion,
// audio transcription and conversation summarization.
package llm

import "context"

// Message is one conversation turn sent to the model.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage tracks token consumption of one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed chat call.
type Result struct {
	Content string
	Model   string
	Usage   *Usage
}

// Client is the model-facing contract of the conversation pipeline.
type Client interface {
	// ChatCompletion runs the message list through the chat model.
	ChatCompletion(ctx context.Context, messages []Message) (*Result, error)
	// Transcribe converts an audio file into text.
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
	// Summarize compresses a conversation transcript into a short summary.
	Summarize(ctx context.Context, transcript []Message) (*Result, error)
}
