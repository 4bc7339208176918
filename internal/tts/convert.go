package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Progress statuses reported by Converter.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Progress reports where a conversion is.
type Progress struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	CurrentChunk string `json:"current_chunk"`
	Status       string `json:"status"`
}

// AudioFile is one synthesized chunk, ready to save.
type AudioFile struct {
	Index int    `json:"index"` // 1-based chunk number
	Name  string `json:"name"`
	Data  []byte `json:"-"`
}

// Converter turns long text into a sequence of WAV files through a Queue.
type Converter struct {
	queue        *Queue
	chunkWords   int
	instructions string
	logger       *slog.Logger
}

// ConverterConfig configures a Converter.
type ConverterConfig struct {
	Queue        *Queue
	ChunkWords   int    // Defaults to DefaultChunkWords
	Instructions string // Delivery guidance sent with every chunk
	Logger       *slog.Logger
}

// NewConverter creates a converter.
func NewConverter(cfg ConverterConfig) *Converter {
	if cfg.ChunkWords <= 0 {
		cfg.ChunkWords = DefaultChunkWords
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Converter{
		queue:        cfg.Queue,
		chunkWords:   cfg.ChunkWords,
		instructions: cfg.Instructions,
		logger:       cfg.Logger,
	}
}

// ChunkName returns the file name for the 1-based chunk n.
func ChunkName(n int) string {
	return fmt.Sprintf("story_chunk_%d.wav", n)
}

// Convert synthesizes text chunk by chunk. A failed chunk is reported and
// skipped. The error is non-nil only when ctx ends or every chunk failed.
func (c *Converter) Convert(ctx context.Context, text, voice string, onProgress func(Progress)) ([]AudioFile, error) {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	chunks := SplitChunks(text, c.chunkWords)
	total := len(chunks)
	c.logger.Info("converting text to speech", "chunks", total, "voice", voice)

	var (
		files   []AudioFile
		lastErr error
	)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		report(Progress{Current: i + 1, Total: total, CurrentChunk: preview(chunk), Status: StatusProcessing})

		fut := c.queue.Submit(ctx, Request{Text: chunk, Voice: voice, Instructions: c.instructions})
		res, err := fut.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return files, ctx.Err()
			}
			lastErr = err
			c.logger.Error("failed to convert chunk", "chunk", i+1, "error", err)
			report(Progress{Current: i + 1, Total: total, CurrentChunk: fmt.Sprintf("Failed to convert chunk %d", i+1), Status: StatusError})
			continue
		}

		files = append(files, AudioFile{
			Index: i + 1,
			Name:  ChunkName(i + 1),
			Data:  WrapWAV(res.Audio, res.SampleRate),
		})
	}

	report(Progress{Current: total, Total: total, CurrentChunk: "Completed all chunks", Status: StatusCompleted})

	if len(files) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d chunks failed: %w", total, lastErr)
	}
	return files, nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > 100 {
		r = r[:100]
	}
	return string(r) + "..."
}
