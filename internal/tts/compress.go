package tts

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/tutorstack/voice-gateway/internal/metrics"
)

// CompressEncoding is the transfer encoding applied to audio above the
// size threshold.
const CompressEncoding = "zstd"

// Compressor decides whether synthesized audio is worth re-encoding before
// caching and delivery. It is stateless per call and safe for concurrent
// use (zstd's EncodeAll is concurrency-safe).
type Compressor struct {
	threshold int
	enc       *zstd.Encoder
}

// NewCompressor builds a compressor that re-encodes payloads larger than
// threshold bytes. A non-positive threshold disables compression entirely.
func NewCompressor(threshold int) (*Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	return &Compressor{threshold: threshold, enc: enc}, nil
}

// Compress returns the possibly re-encoded audio and whether compression was
// applied. Audio below the threshold, or audio that does not shrink, passes
// through untouched. This step never fails a synthesis call.
func (c *Compressor) Compress(audio []byte) ([]byte, bool) {
	if c == nil || c.threshold <= 0 || len(audio) <= c.threshold {
		return audio, false
	}

	out := c.enc.EncodeAll(audio, make([]byte, 0, len(audio)/2))
	if len(out) >= len(audio) {
		return audio, false
	}
	metrics.CompressionRatio.Observe(float64(len(out)) / float64(len(audio)))
	return out, true
}
