package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWords int
		want     []string
	}{
		{"empty", "   ", 3, nil},
		{"single chunk", "one two", 3, []string{"one two"}},
		{"exact boundary", "a b c d e f", 3, []string{"a b c", "d e f"}},
		{"remainder", "a b c d", 3, []string{"a b c", "d"}},
		{"collapses whitespace", " a\n\nb\tc ", 5, []string{"a b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitChunks(tt.text, tt.maxWords)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitChunks() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	t.Run("default size", func(t *testing.T) {
		text := strings.Repeat("word ", 3001)
		got := SplitChunks(text, 0)
		if len(got) != 3 {
			t.Fatalf("expected 3 chunks of up to 1500 words, got %d", len(got))
		}
		if n := len(strings.Fields(got[0])); n != 1500 {
			t.Errorf("first chunk has %d words", n)
		}
	})
}

func TestWrapWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := WrapWAV(pcm, 0)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !IsWAV(wav) {
		t.Fatal("expected RIFF/WAVE header")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Errorf("expected sample rate 24000, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("expected mono, got %d channels", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("expected 16-bit, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("expected data size %d, got %d", len(pcm), got)
	}

	if again := WrapWAV(wav, 0); len(again) != len(wav) {
		t.Error("existing WAV data should pass through unchanged")
	}
}

func TestConverter_Convert(t *testing.T) {
	words := func(prefix string, n int) string {
		return strings.TrimSpace(strings.Repeat(prefix+" ", n))
	}
	text := words("a", 2) + " " + words("b", 2) + " " + words("c", 2)

	synth := &recordingSynth{fail: map[string]error{"b b": errors.New("speech failed")}}
	q := NewQueue(synth, WithLogger(quietLogger()))
	defer q.Close()

	conv := NewConverter(ConverterConfig{Queue: q, ChunkWords: 2, Instructions: "read slowly", Logger: quietLogger()})

	var events []Progress
	files, err := conv.Convert(context.Background(), text, "Kore", func(p Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Name != "story_chunk_1.wav" || files[1].Name != "story_chunk_3.wav" {
		t.Errorf("unexpected file names %s, %s", files[0].Name, files[1].Name)
	}
	if !IsWAV(files[0].Data) {
		t.Error("expected WAV output")
	}

	var statuses []string
	for _, e := range events {
		statuses = append(statuses, e.Status)
	}
	want := []string{StatusProcessing, StatusProcessing, StatusError, StatusProcessing, StatusCompleted}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("progress statuses = %v, want %v", statuses, want)
	}
	if events[2].CurrentChunk != "Failed to convert chunk 2" {
		t.Errorf("unexpected error label %q", events[2].CurrentChunk)
	}
	last := events[len(events)-1]
	if last.Current != 3 || last.Total != 3 || last.CurrentChunk != "Completed all chunks" {
		t.Errorf("unexpected final progress %+v", last)
	}
}

func TestConverter_AllChunksFail(t *testing.T) {
	synth := &recordingSynth{fail: map[string]error{"only": errors.New("nope")}}
	q := NewQueue(synth, WithLogger(quietLogger()))
	defer q.Close()

	conv := NewConverter(ConverterConfig{Queue: q, Logger: quietLogger()})
	if _, err := conv.Convert(context.Background(), "only", "", nil); err == nil {
		t.Error("expected error when every chunk fails")
	}
}

func TestConverter_Cancelled(t *testing.T) {
	q := NewQueue(&recordingSynth{}, WithLogger(quietLogger()))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := NewConverter(ConverterConfig{Queue: q, Logger: quietLogger()})
	if _, err := conv.Convert(ctx, "some text", "", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
