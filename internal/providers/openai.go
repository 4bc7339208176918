package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

const (
	OpenAIType = "openai"

	openAIDefaultTextModel   = "gpt-4o-mini"
	openAIDefaultSpeechModel = "gpt-4o-mini-tts"
	openAIDefaultImageModel  = "dall-e-3"
	openAIDefaultVoice       = "Kore"

	// Raw PCM from the speech endpoint is 24kHz 16-bit mono.
	PCMSampleRate = 24000
)

// OpenAIConfig holds configuration for an OpenAI-compatible client.
// Gemini, OpenAI and most gateways accept the same wire format.
type OpenAIConfig struct {
	Name        string
	APIKey      string
	BaseURL     string // Empty uses api.openai.com
	TextModel   string
	SpeechModel string
	ImageModel  string
	Voice       string
	MaxRetries  int           // SDK transport retries
	Timeout     time.Duration // HTTP timeout
	HTTPClient  *http.Client  // Optional (tests)
}

// OpenAIClient implements LLMClient, TTSProvider and ImageProvider using the official SDK.
type OpenAIClient struct {
	name        string
	apiKey      string
	baseURL     string
	textModel   string
	speechModel string
	imageModel  string
	voice       string
	maxRetries  int
	client      openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Name == "" {
		cfg.Name = OpenAIType
	}
	if cfg.TextModel == "" {
		cfg.TextModel = openAIDefaultTextModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = openAIDefaultSpeechModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openAIDefaultImageModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAIDefaultVoice
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		// Chapter streams can run for minutes.
		cfg.Timeout = 10 * time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		name:        cfg.Name,
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		textModel:   cfg.TextModel,
		speechModel: cfg.SpeechModel,
		imageModel:  cfg.ImageModel,
		voice:       cfg.Voice,
		maxRetries:  cfg.MaxRetries,
		client:      openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return c.name
}

// TextModel returns the default chat model.
func (c *OpenAIClient) TextModel() string {
	return c.textModel
}

// Chat sends a non-streaming chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	params, err := c.chatParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError("chat", err)
	}

	result := &ChatResult{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		ExecutionTime:    time.Since(start),
		Provider:         c.name,
		ModelUsed:        resp.Model,
		RequestID:        req.RequestID,
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.FinishReason == "content_filter" {
			return nil, fmt.Errorf("%w: chat response filtered", ErrBlocked)
		}
		result.Content = choice.Message.Content
	}
	return result, nil
}

// ChatStream starts a streaming chat completion.
func (c *OpenAIClient) ChatStream(ctx context.Context, req *ChatRequest) (TextStream, error) {
	params, err := c.chatParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, mapOpenAIError("chat stream", err)
	}
	return &openAITextStream{stream: stream}, nil
}

func (c *OpenAIClient) chatParams(req *ChatRequest) (openai.ChatCompletionNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("at least one message is required")
	}

	model := req.Model
	if model == "" {
		model = c.textModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params, nil
}

type openAITextStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cur    string
}

func (s *openAITextStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.cur = delta
			return true
		}
	}
	return false
}

func (s *openAITextStream) Current() string {
	return s.cur
}

func (s *openAITextStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return mapOpenAIError("chat stream", err)
	}
	return nil
}

func (s *openAITextStream) Close() error {
	return s.stream.Close()
}

// Generate converts text to audio using the speech endpoint.
func (c *OpenAIClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	if req == nil {
		return nil, errors.New("request is required")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("text is required")
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.voice
	}

	format := normalizeSpeechFormat(req.Format)
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.speechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
	}
	if instructions := strings.TrimSpace(req.Instructions); instructions != "" && supportsInstructions(c.speechModel) {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError("speech", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("no audio data received")
	}

	result := &TTSResult{
		Audio:         audio,
		Format:        string(format),
		CharCount:     len(text),
		ExecutionTime: time.Since(start),
	}
	if format == openai.AudioSpeechNewParamsResponseFormatPCM {
		result.SampleRate = PCMSampleRate
	}
	return result, nil
}

// GenerateImages requests images as base64 JSON and decodes them.
func (c *OpenAIClient) GenerateImages(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	model := req.Model
	if model == "" {
		model = c.imageModel
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}

	params := openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(model),
		N:              openai.Int(int64(count)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, mapOpenAIError("image", err)
	}

	result := &ImageResult{}
	for _, img := range resp.Data {
		if img.B64JSON == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed decoding image payload: %w", err)
		}
		result.Images = append(result.Images, data)
		if result.RevisedPrompt == "" {
			result.RevisedPrompt = img.RevisedPrompt
		}
	}
	result.ExecutionTime = time.Since(start)

	if len(result.Images) == 0 {
		return nil, ErrBlocked
	}
	return result, nil
}

// HealthCheck verifies the API is reachable and the key is accepted.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("models list failed: %w", mapOpenAIError("models", err))
	}
	if page == nil {
		return errors.New("models list returned nil response")
	}
	return nil
}

func supportsInstructions(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-4o-mini-tts") || strings.Contains(m, "-tts")
}

func normalizeSpeechFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "pcm":
		return openai.AudioSpeechNewParamsResponseFormatPCM
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	case "mp3":
		return openai.AudioSpeechNewParamsResponseFormatMP3
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	default:
		return openai.AudioSpeechNewParamsResponseFormatPCM
	}
}

func mapOpenAIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("%s rate limited: %s", op, apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Code == "content_policy_violation" || isBlockedMessage(apiErr.Message) {
			return fmt.Errorf("%w: %s", ErrBlocked, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s error (status %d): %s", op, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s error (status %d)", op, apiErr.StatusCode)
	}
	if isBlockedMessage(err.Error()) {
		return fmt.Errorf("%w: %s", ErrBlocked, err.Error())
	}
	return err
}

var (
	_ LLMClient     = (*OpenAIClient)(nil)
	_ TTSProvider   = (*OpenAIClient)(nil)
	_ ImageProvider = (*OpenAIClient)(nil)
)
