package images

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/talespin/internal/assets"
)

// DefaultDelay is the pause between segment requests.
const DefaultDelay = 5 * time.Second

// Segment statuses
const (
	StatusProcessing = "processing"
	StatusWaiting    = "waiting"
	StatusGenerated  = "generated"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusCompleted  = "completed"
)

// AutoOptions tunes AutoGenerate.
type AutoOptions struct {
	SegmentWords int
	// Delay between segments; zero means DefaultDelay, negative disables it.
	Delay time.Duration
	// Master is used as-is when set; otherwise it is derived from the story.
	Master string
}

// Progress reports AutoGenerate's position. Current counts segments that
// needed work; Segment is the 1-based segment number.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Segment int    `json:"segment,omitempty"`
	Status  string `json:"status"`
}

// SegmentResult is the outcome for one segment.
type SegmentResult struct {
	Segment   int      `json:"segment"`
	Status    string   `json:"status"`
	Prompt    string   `json:"prompt,omitempty"`
	Sanitized bool     `json:"sanitized,omitempty"`
	Keys      []string `json:"keys,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Report summarizes an AutoGenerate run.
type Report struct {
	Master    string          `json:"master"`
	Generated int             `json:"generated"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Segments  []SegmentResult `json:"segments"`
}

// AutoGenerate illustrates every segment of story that has no image yet.
// Segments run one at a time with opts.Delay between requests, and a failed
// segment does not stop the run. Images are written to the sink under the
// story's image prefix. Cancelling ctx stops between segments and returns the
// partial report with ctx.Err().
func (p *Pipeline) AutoGenerate(ctx context.Context, storyID, story string, opts AutoOptions, onProgress func(Progress)) (*Report, error) {
	if p.sink == nil {
		return nil, fmt.Errorf("auto-generate requires an asset sink")
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultDelay
	}

	report := &Report{Master: opts.Master}
	if report.Master == "" {
		master, err := p.MasterPrompt(ctx, story)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			p.logger.Warn("continuing without master prompt", "story_id", storyID, "error", err)
		}
		report.Master = master
	}

	segments := Segment(story, opts.SegmentWords)
	var todo []int
	for i := range segments {
		n := i + 1
		exists, err := p.sink.Exists(ctx, assets.ImageKey(storyID, n, 1))
		if err != nil {
			p.logger.Warn("failed to check existing image", "story_id", storyID, "segment", n, "error", err)
		}
		if exists {
			report.Skipped++
			report.Segments = append(report.Segments, SegmentResult{Segment: n, Status: StatusSkipped})
			continue
		}
		todo = append(todo, n)
	}

	for i, n := range todo {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		onProgress(Progress{Current: i + 1, Total: len(todo), Segment: n, Status: StatusProcessing})

		result := p.illustrate(ctx, storyID, n, segments[n-1], report.Master)
		report.Segments = append(report.Segments, result)
		if result.Status == StatusGenerated {
			report.Generated++
		} else {
			report.Failed++
			p.logger.Error("segment illustration failed", "story_id", storyID, "segment", n, "error", result.Error)
		}

		if i < len(todo)-1 && delay > 0 {
			onProgress(Progress{Current: i + 1, Total: len(todo), Segment: n, Status: StatusWaiting})
			if err := p.sleep(ctx, delay); err != nil {
				return report, err
			}
		}
	}

	onProgress(Progress{Current: len(todo), Total: len(todo), Status: StatusCompleted})
	p.logger.Info("auto-generate finished", "story_id", storyID,
		"generated", report.Generated, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (p *Pipeline) illustrate(ctx context.Context, storyID string, n int, segment, master string) SegmentResult {
	result := SegmentResult{Segment: n, Status: StatusFailed}

	prompt, err := p.SegmentPrompt(ctx, segment, master)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Prompt = prompt

	gen, err := p.generate(ctx, prompt)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Prompt = gen.Prompt
	result.Sanitized = gen.Sanitized

	keys, err := p.StoreImages(ctx, storyID, n, gen.Images)
	result.Keys = keys
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Status = StatusGenerated
	return result
}

// StoreImages writes images for a single segment and returns their keys.
func (p *Pipeline) StoreImages(ctx context.Context, storyID string, segment int, images [][]byte) ([]string, error) {
	if p.sink == nil {
		return nil, fmt.Errorf("no asset sink configured")
	}
	keys := make([]string, 0, len(images))
	for k, img := range images {
		key := assets.ImageKey(storyID, segment, k+1)
		if err := p.sink.Put(ctx, key, img, "image/jpeg"); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
