package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint derives the deterministic cache key for a request. Text is
// normalized (trimmed, inner whitespace collapsed) so that presentation
// differences in markup do not defeat the cache; every voice-relevant
// parameter is folded in so distinct voices never share an entry.
func Fingerprint(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1f%s\x1f%.3f\x1f%.3f\x1f%t%t%t",
		normalizeText(req.Text),
		req.Language,
		req.Emotion,
		req.Persona,
		req.Voice.VoiceID,
		req.Voice.Speed,
		req.Voice.Pitch,
		req.MathSpeech, req.InsertPauses, req.Emphasis,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
