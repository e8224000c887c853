package ws

import "strings"

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// splitSentences breaks answer text at sentence boundaries so each piece is
// synthesized (and cached) independently. A boundary is a sentence ender
// (.!?) followed by whitespace. Text with no boundary comes back as a
// single piece.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if sentenceEnders[text[i]] && isWordBoundary(text[i+1]) {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
