package tts

import "strings"

// DefaultChunkWords is the largest chunk sent in one speech request.
const DefaultChunkWords = 1500

// SplitChunks splits text on whitespace into chunks of at most maxWords words.
// Whitespace inside a chunk is normalized to single spaces.
func SplitChunks(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultChunkWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+maxWords-1)/maxWords)
	for i := 0; i < len(words); i += maxWords {
		end := min(i+maxWords, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
