package service

import (
	"fmt"
)

// Chunk is one window of extracted text, sized for embedding. Index is
// 0-based and dense per document.
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
}

// ChunkText splits text into overlapping windows of chunkSize characters,
// advancing by chunkSize-overlap each step. The final chunk may be shorter
// than chunkSize but is never empty; a text shorter than one window produces
// exactly one chunk. The function is pure: identical input and parameters
// always yield an identical sequence.
//
// Stripping the trailing overlap of every non-final chunk and concatenating
// reconstructs the input exactly.
func ChunkText(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, chunk size), got %d", overlap)
	}
	if text == "" {
		return nil, ErrEmptyInput
	}

	runes := []rune(text)
	step := chunkSize - overlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			TokenCount: approxTokens(content),
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// approxTokens estimates the token count of a chunk. Rough heuristic of four
// characters per token, floored at one for non-empty content.
func approxTokens(s string) int {
	n := len([]rune(s)) / 4
	if n == 0 {
		n = 1
	}
	return n
}
