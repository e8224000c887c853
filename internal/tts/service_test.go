package tts

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *captureRecorder) RecordSynthesis(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func newTestService(t *testing.T, providers []Provider, threshold int) (*Service, *captureRecorder) {
	t.Helper()
	comp, err := NewCompressor(threshold)
	if err != nil {
		t.Fatalf("NewCompressor() error = %v", err)
	}
	rec := &captureRecorder{}
	return NewService(NewChain(providers, 3, time.Minute), NewCache(16, time.Hour), comp, rec), rec
}

func TestServiceRejectsAtCharCeiling(t *testing.T) {
	p := &fakeProvider{name: "p"}
	svc, _ := newTestService(t, []Provider{p}, 0)

	_, err := svc.Synthesize(context.Background(), Request{Text: strings.Repeat("a", MaxTextChars)},
		ProfileQuality, "s1", 0)
	if !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("error = %v, want ErrTextTooLong at %d chars", err, MaxTextChars)
	}
	if p.calls != 0 {
		t.Fatal("rejected text must never reach a provider")
	}

	_, err = svc.Synthesize(context.Background(), Request{Text: strings.Repeat("a", MaxTextChars-1)},
		ProfileQuality, "s1", 0)
	if err != nil {
		t.Fatalf("one char under the ceiling must proceed, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", p.calls)
	}
}

func TestServiceCacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{name: "p"}
	svc, rec := newTestService(t, []Provider{p}, 0)
	req := Request{Text: "What is a derivative?", Language: "en"}

	first, err := svc.Synthesize(context.Background(), req, ProfileQuality, "s1", 0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if first.CacheHit {
		t.Fatal("first call must be a miss")
	}

	second, err := svc.Synthesize(context.Background(), req, ProfileQuality, "s1", 1)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second call must be a hit")
	}
	if !bytes.Equal(first.Audio, second.Audio) {
		t.Fatal("hit must return byte-identical audio")
	}
	if p.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", p.calls)
	}

	if len(rec.attempts) != 2 || !rec.attempts[1].CacheHit {
		t.Fatalf("attempts = %+v, want two records with the second a hit", rec.attempts)
	}
}

func TestServiceCachesVisemesWithAudio(t *testing.T) {
	p := &fakeProvider{name: "p", data: &SpeechData{
		Audio:       []byte("audio"),
		ContentType: "audio/mpeg",
		Visemes:     []VisemeFrame{{TimeMs: 0, Viseme: "mbp", Weight: 1}, {TimeMs: 120, Viseme: "aa", Weight: 1}},
	}}
	svc, _ := newTestService(t, []Provider{p}, 0)
	req := Request{Text: "hello"}

	svc.Synthesize(context.Background(), req, ProfileQuality, "s1", 0)
	hit, err := svc.Synthesize(context.Background(), req, ProfileQuality, "s1", 1)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(hit.Visemes) != 2 || hit.Visemes[1].Viseme != "aa" {
		t.Fatalf("Visemes = %+v, want the stored track on a hit", hit.Visemes)
	}
	if hit.ContentType != "audio/mpeg" {
		t.Fatalf("ContentType = %q, want audio/mpeg", hit.ContentType)
	}
}

func TestServiceCompressesLargeAudio(t *testing.T) {
	big := bytes.Repeat([]byte("silence "), 4096)
	p := &fakeProvider{name: "p", data: &SpeechData{Audio: big, ContentType: "audio/wav"}}
	svc, rec := newTestService(t, []Provider{p}, 1024)

	res, err := svc.Synthesize(context.Background(), Request{Text: "long answer"}, ProfileQuality, "s1", 0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !res.Compressed || res.Encoding != CompressEncoding {
		t.Fatalf("Compressed=%v Encoding=%q, want zstd compression applied", res.Compressed, res.Encoding)
	}
	if len(res.Audio) >= len(big) {
		t.Fatal("compressed audio must be smaller than the original")
	}

	// A hit returns the same compressed representation.
	hit, _ := svc.Synthesize(context.Background(), Request{Text: "long answer"}, ProfileQuality, "s1", 1)
	if !hit.CacheHit || !hit.Compressed || !bytes.Equal(hit.Audio, res.Audio) {
		t.Fatal("hit must return the compressed bytes the first caller received")
	}

	// Both the miss and the hit record the pre-compression size.
	for i, a := range rec.attempts {
		if a.OriginalBytes != len(big) || a.CompressedBytes != len(res.Audio) {
			t.Fatalf("attempt %d sizes = %d/%d, want %d/%d", i, a.OriginalBytes, a.CompressedBytes, len(big), len(res.Audio))
		}
	}
}

func TestServiceSmallAudioPassesThrough(t *testing.T) {
	p := &fakeProvider{name: "p", data: &SpeechData{Audio: []byte("tiny"), ContentType: "audio/wav"}}
	svc, _ := newTestService(t, []Provider{p}, 1024)

	res, err := svc.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality, "s1", 0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Compressed || res.Encoding != "" {
		t.Fatal("audio below the threshold must pass through uncompressed")
	}
	if string(res.Audio) != "tiny" {
		t.Fatalf("Audio = %q, want untouched bytes", res.Audio)
	}
}

func TestServiceConcurrentMisses(t *testing.T) {
	p := &fakeProvider{name: "p"}
	// fakeProvider.calls is not synchronized; serialize via a wrapping mutex.
	var mu sync.Mutex
	guarded := providerFunc{name: "p", fn: func(ctx context.Context, req Request) (*SpeechData, error) {
		mu.Lock()
		defer mu.Unlock()
		return p.Synthesize(ctx, req)
	}}
	svc, _ := newTestService(t, []Provider{guarded}, 0)
	req := Request{Text: "same question"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Synthesize(context.Background(), req, ProfileQuality, "s1", i); err != nil {
				t.Errorf("Synthesize() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if svc.Cache().Len() != 1 {
		t.Fatalf("cache entries = %d, want 1 for one fingerprint", svc.Cache().Len())
	}
}

type providerFunc struct {
	name string
	fn   func(context.Context, Request) (*SpeechData, error)
}

func (p providerFunc) Name() string { return p.name }

func (p providerFunc) Synthesize(ctx context.Context, req Request) (*SpeechData, error) {
	return p.fn(ctx, req)
}
