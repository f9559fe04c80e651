package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBase = "https://api.openai.com/v1"

	chatTemperature    = 0.5
	transcriptionModel = "whisper-1"

	summaryPrompt = "Resume esta conversación en 5 líneas."
)

// OpenAIClient implements Client against the OpenAI HTTP API.
type OpenAIClient struct {
	apiKey    string
	apiBase   string
	chatModel string
	client    *http.Client
}

func NewOpenAIClient(apiKey, chatModel string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:    apiKey,
		apiBase:   defaultAPIBase,
		chatModel: chatModel,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// WithAPIBase points the client at an OpenAI-compatible endpoint.
func (c *OpenAIClient) WithAPIBase(base string) *OpenAIClient {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

// APIKey returns the key this client was built with, used to detect
// per-tenant key rotation.
func (c *OpenAIClient) APIKey() string { return c.apiKey }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []Message) (*Result, error) {
	body := map[string]any{
		"model":       c.chatModel,
		"messages":    messages,
		"temperature": chatTemperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}

	return &Result{
		Content: parsed.Choices[0].Message.Content,
		Model:   c.chatModel,
		Usage:   parsed.Usage,
	}, nil
}

// Transcribe sends audio bytes to the transcription endpoint and
// returns the plain-text transcript.
func (c *OpenAIClient) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("openai: write audio: %w", err)
	}
	if err := w.WriteField("model", transcriptionModel); err != nil {
		return "", fmt.Errorf("openai: write field: %w", err)
	}
	if err := w.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("openai: write field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("openai: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read transcription: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: transcription status %d: %s", resp.StatusCode, string(respBody))
	}
	return strings.TrimSpace(string(respBody)), nil
}

// Summarize compresses the transcript through the chat model with a
// fixed summarization instruction.
func (c *OpenAIClient) Summarize(ctx context.Context, transcript []Message) (*Result, error) {
	messages := make([]Message, 0, len(transcript)+1)
	messages = append(messages, Message{Role: "system", Content: summaryPrompt})
	messages = append(messages, transcript...)
	return c.ChatCompletion(ctx, messages)
}
