package chunker

// Split cuts text into fixed-size rune windows in order. The output
// concatenates back to the input exactly, which keeps chunk boundaries
// reproducible for any given (text, maxRunes) pair and makes the content
// hash a valid cache key for embeddings. Empty text yields no chunks.
func Split(text string, maxRunes int) []string {
	if text == "" {
		return nil
	}
	if maxRunes <= 0 {
		maxRunes = 500
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+maxRunes-1)/maxRunes)
	for start := 0; start < len(runes); start += maxRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
