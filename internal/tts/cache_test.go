package tts

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestFingerprintNormalizesWhitespace(t *testing.T) {
	a := Fingerprint(Request{Text: "What   is  photosynthesis?"})
	b := Fingerprint(Request{Text: " What is photosynthesis? "})
	if a != b {
		t.Fatal("whitespace variants must share a fingerprint")
	}
}

func TestFingerprintVoiceParameters(t *testing.T) {
	base := Request{Text: "hello", Language: "en", Voice: VoiceConfig{VoiceID: "v1", Speed: 1.0}}

	variants := []Request{
		{Text: "hello", Language: "de", Voice: base.Voice},
		{Text: "hello", Language: "en", Emotion: "warm", Voice: base.Voice},
		{Text: "hello", Language: "en", Persona: "coach", Voice: base.Voice},
		{Text: "hello", Language: "en", Voice: VoiceConfig{VoiceID: "v2", Speed: 1.0}},
		{Text: "hello", Language: "en", Voice: VoiceConfig{VoiceID: "v1", Speed: 1.2}},
		{Text: "hello", Language: "en", Voice: base.Voice, MathSpeech: true},
	}
	key := Fingerprint(base)
	for i, v := range variants {
		if Fingerprint(v) == key {
			t.Errorf("variant %d must not collide with the base fingerprint", i)
		}
	}
}

func TestCacheHitReturnsStoredEntry(t *testing.T) {
	c := NewCache(4, time.Hour)
	entry := CacheEntry{Audio: []byte("wav-bytes"), ContentType: "audio/wav",
		Visemes: []VisemeFrame{{TimeMs: 0, Viseme: "aa", Weight: 1}}}

	c.Set("k", entry)
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !bytes.Equal(got.Audio, entry.Audio) {
		t.Fatal("hit must return the stored audio bytes")
	}
	if len(got.Visemes) != 1 || got.Visemes[0].Viseme != "aa" {
		t.Fatal("hit must return the stored viseme track")
	}
}

func TestCacheSetIdempotent(t *testing.T) {
	c := NewCache(4, 0)
	c.Set("k", CacheEntry{Audio: []byte("one")})
	c.Set("k", CacheEntry{Audio: []byte("two")})

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	got, _ := c.Get("k")
	if string(got.Audio) != "two" {
		t.Fatalf("Audio = %q, want last write to win", got.Audio)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, 0)
	c.Set("a", CacheEntry{Audio: []byte("a")})
	c.Set("b", CacheEntry{Audio: []byte("b")})

	// Touch "a" so "b" is the LRU entry.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a hit for a")
	}
	c.Set("c", CacheEntry{Audio: []byte("c")})

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("c should be present")
	}
	if st := c.Stats(); st.Evictions != 1 {
		t.Fatalf("Evictions = %d, want 1", st.Evictions)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(4, time.Hour)
	c.now = func() time.Time { return now }

	c.Set("k", CacheEntry{Audio: []byte("x")})

	now = now.Add(59 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry must still be live before the TTL")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry must expire at the TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after lazy expiry", c.Len())
	}
}

func TestCacheClearKeepsCounters(t *testing.T) {
	c := NewCache(4, 0)
	c.Set("k", CacheEntry{Audio: []byte("x")})
	c.Get("k")
	c.Get("missing")

	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after clear", c.Len())
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("Stats() = %+v, want hit/miss counters to survive a clear", st)
	}
}

func TestCacheConcurrentSameKey(t *testing.T) {
	c := NewCache(8, 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("k", CacheEntry{Audio: []byte(fmt.Sprintf("writer-%d", i))})
			c.Get("k")
		}(i)
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want exactly one entry for one key", c.Len())
	}
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry must be readable after concurrent writes")
	}
}
