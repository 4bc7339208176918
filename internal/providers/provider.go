package providers

import (
	"context"
	"time"
)

// LLMClient is the primary interface for chat/completion requests.
type LLMClient interface {
	// Chat sends a chat completion request and waits for the full response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// ChatStream sends a chat completion request and returns incremental text.
	// The caller must Close the stream.
	ChatStream(ctx context.Context, req *ChatRequest) (TextStream, error)

	// Name returns the client identifier (e.g., "gemini").
	Name() string
}

// TextStream yields text deltas from a streaming completion.
//
//	for s.Next() {
//		fmt.Print(s.Current())
//	}
//	if err := s.Err(); err != nil { ... }
type TextStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// TTSProvider converts text to audio.
type TTSProvider interface {
	Name() string
	Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error)
}

// ImageProvider generates images from a text prompt.
type ImageProvider interface {
	Name() string
	GenerateImages(ctx context.Context, req *ImageRequest) (*ImageResult, error)
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	// Required
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters; nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	Content string `json:"content"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
}

// TTSRequest is a single speech synthesis call.
type TTSRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	Instructions string `json:"instructions,omitempty"` // Delivery guidance for models that accept it
	Format       string `json:"format,omitempty"`       // "pcm" (default), "wav", "mp3"
}

// TTSResult carries synthesized audio.
type TTSResult struct {
	Audio         []byte        `json:"-"`
	Format        string        `json:"format"`
	SampleRate    int           `json:"sample_rate,omitempty"` // Set for raw PCM
	CharCount     int           `json:"char_count"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// ImageRequest asks for one or more images for a prompt.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Count  int    `json:"count,omitempty"`
	Size   string `json:"size,omitempty"` // e.g. "1792x1024" for 16:9
}

// ImageResult holds decoded image bytes.
type ImageResult struct {
	Images        [][]byte      `json:"-"`
	RevisedPrompt string        `json:"revised_prompt,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Float returns a pointer to v, for optional sampling parameters.
func Float(v float64) *float64 {
	return &v
}
