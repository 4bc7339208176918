package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient, TTSProvider and ImageProvider for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int   // Fail after N requests (0 = never)
	FailErr      error // Returned on failure; defaults to a generic error
	ResponseText string

	// Respond overrides ResponseText per chat request.
	Respond func(req *ChatRequest) (string, error)

	// StreamErr is reported by the stream after all chunks are delivered.
	StreamErr error

	// Speech and image payloads
	Audio        []byte
	Images       [][]byte
	ImageRespond func(req *ImageRequest) ([][]byte, error)

	mu            sync.Mutex
	chatRequests  []ChatRequest
	ttsRequests   []TTSRequest
	imageRequests []ImageRequest

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
		Audio:        []byte{0x01, 0x00, 0x02, 0x00},
		Images:       [][]byte{[]byte("mock-image")},
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	text, err := c.chatText(ctx, req)
	if err != nil {
		return nil, err
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	completionTokens := len(text) / 4

	return &ChatResult{
		Content:          text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		ExecutionTime:    time.Since(start),
		Provider:         MockClientName,
		ModelUsed:        req.Model,
		RequestID:        req.RequestID,
	}, nil
}

// ChatStream streams the response word by word.
func (c *MockClient) ChatStream(ctx context.Context, req *ChatRequest) (TextStream, error) {
	text, err := c.chatText(ctx, req)
	if err != nil {
		return nil, err
	}
	var chunks []string
	if text != "" {
		chunks = strings.SplitAfter(text, " ")
	}
	return &MockStream{Chunks: chunks, FinalErr: c.StreamErr}, nil
}

func (c *MockClient) chatText(ctx context.Context, req *ChatRequest) (string, error) {
	if req == nil {
		return "", errors.New("request is required")
	}
	c.mu.Lock()
	c.chatRequests = append(c.chatRequests, *req)
	c.mu.Unlock()

	if err := c.begin(ctx); err != nil {
		return "", err
	}
	if c.Respond != nil {
		return c.Respond(req)
	}
	return c.ResponseText, nil
}

// Generate returns the configured audio payload.
func (c *MockClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	if req == nil {
		return nil, errors.New("request is required")
	}
	c.mu.Lock()
	c.ttsRequests = append(c.ttsRequests, *req)
	c.mu.Unlock()

	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	return &TTSResult{
		Audio:         append([]byte(nil), c.Audio...),
		Format:        "pcm",
		SampleRate:    PCMSampleRate,
		CharCount:     len(req.Text),
		ExecutionTime: time.Since(start),
	}, nil
}

// GenerateImages returns the configured image payloads.
func (c *MockClient) GenerateImages(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()
	if req == nil {
		return nil, errors.New("request is required")
	}
	c.mu.Lock()
	c.imageRequests = append(c.imageRequests, *req)
	c.mu.Unlock()

	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	images := c.Images
	if c.ImageRespond != nil {
		var err error
		if images, err = c.ImageRespond(req); err != nil {
			return nil, err
		}
	}
	if len(images) == 0 {
		return nil, ErrBlocked
	}
	return &ImageResult{Images: images, ExecutionTime: time.Since(start)}, nil
}

// begin counts the request, applies failure injection and simulates latency.
func (c *MockClient) begin(ctx context.Context) error {
	count := c.requestCount.Add(1)

	if c.ShouldFail {
		return c.failure("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return c.failure(fmt.Sprintf("mock client failed after %d requests", c.FailAfter))
	}

	if c.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(c.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MockClient) failure(msg string) error {
	if c.FailErr != nil {
		return c.FailErr
	}
	return errors.New(msg)
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// ChatRequests returns a copy of the chat requests received.
func (c *MockClient) ChatRequests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatRequest(nil), c.chatRequests...)
}

// TTSRequests returns a copy of the speech requests received.
func (c *MockClient) TTSRequests() []TTSRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TTSRequest(nil), c.ttsRequests...)
}

// ImageRequests returns a copy of the image requests received.
func (c *MockClient) ImageRequests() []ImageRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ImageRequest(nil), c.imageRequests...)
}

// Reset resets the request counter and recorded requests.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.chatRequests = nil
	c.ttsRequests = nil
	c.imageRequests = nil
	c.mu.Unlock()
}

// MockStream is a TextStream over fixed chunks.
type MockStream struct {
	Chunks   []string
	FinalErr error

	pos    int
	cur    string
	closed bool
}

func (s *MockStream) Next() bool {
	if s.closed || s.pos >= len(s.Chunks) {
		return false
	}
	s.cur = s.Chunks[s.pos]
	s.pos++
	return true
}

func (s *MockStream) Current() string { return s.cur }

func (s *MockStream) Err() error {
	if s.pos >= len(s.Chunks) {
		return s.FinalErr
	}
	return nil
}

func (s *MockStream) Close() error {
	s.closed = true
	return nil
}

// Verify interfaces
var (
	_ LLMClient     = (*MockClient)(nil)
	_ TTSProvider   = (*MockClient)(nil)
	_ ImageProvider = (*MockClient)(nil)
	_ TextStream    = (*MockStream)(nil)
)
