// Package assets stores generated audio and images.
//
// Keys are slash-separated paths scoped by story:
//
//	stories/{id}/audio/story_chunk_{n}.wav
//	stories/{id}/images/segment_{n}_{k}.jpg
package assets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("asset not found")

// Sink persists generated media.
type Sink interface {
	// Put stores data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the object and its content type.
	Get(ctx context.Context, key string) ([]byte, string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns a link a client can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Name identifies the driver ("local", "minio").
	Name() string
}

// AudioKey is the key of narration chunk n (1-based) for a story.
func AudioKey(storyID string, n int) string {
	return fmt.Sprintf("stories/%s/audio/story_chunk_%d.wav", storyID, n)
}

// AudioPrefix is the prefix of every narration chunk of a story.
func AudioPrefix(storyID string) string {
	return fmt.Sprintf("stories/%s/audio/", storyID)
}

// ImageKey is the key of image k of segment n (both 1-based) for a story.
func ImageKey(storyID string, segment, k int) string {
	return fmt.Sprintf("stories/%s/images/segment_%d_%d.jpg", storyID, segment, k)
}

// ImagePrefix is the prefix of every image of a story.
func ImagePrefix(storyID string) string {
	return fmt.Sprintf("stories/%s/images/", storyID)
}

// SegmentPrefix is the prefix of the images of one segment.
func SegmentPrefix(storyID string, segment int) string {
	return fmt.Sprintf("stories/%s/images/segment_%d_", storyID, segment)
}

// ValidateKey rejects keys that could escape the sink root.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("asset key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid asset key: %s", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid asset key: %s", key)
		}
	}
	return nil
}

// ContentTypeFor guesses a content type from the key's extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
