package tts

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name  string
	fail  bool
	calls int
	data  *SpeechData
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Synthesize(ctx context.Context, req Request) (*SpeechData, error) {
	f.calls++
	if f.fail {
		return nil, errors.New(f.name + " unavailable")
	}
	if f.data != nil {
		return f.data, nil
	}
	return &SpeechData{Audio: []byte(f.name + ":" + req.Text), ContentType: "audio/wav"}, nil
}

func TestChainFirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	backup := &fakeProvider{name: "backup"}
	c := NewChain([]Provider{primary, backup}, 3, time.Minute)

	data, name, err := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if name != "primary" || string(data.Audio) != "primary:hi" {
		t.Fatalf("got provider %q, want primary", name)
	}
	if backup.calls != 0 {
		t.Fatal("backup must not be called when primary succeeds")
	}
}

func TestChainFailsOver(t *testing.T) {
	primary := &fakeProvider{name: "primary", fail: true}
	backup := &fakeProvider{name: "backup"}
	c := NewChain([]Provider{primary, backup}, 3, time.Minute)

	_, name, err := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if name != "backup" {
		t.Fatalf("got provider %q, want backup", name)
	}
	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	primary := &fakeProvider{name: "primary", fail: true}
	backup := &fakeProvider{name: "backup"}
	c := NewChain([]Provider{primary, backup}, 2, time.Minute)

	// Two failing calls open primary's breaker.
	for i := 0; i < 2; i++ {
		if _, _, err := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality); err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
	}
	if primary.calls != 2 {
		t.Fatalf("primary calls = %d, want 2", primary.calls)
	}

	// Third call must go straight to the backup.
	_, name, err := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if name != "backup" {
		t.Fatalf("got provider %q, want backup", name)
	}
	if primary.calls != 2 {
		t.Fatal("open breaker must keep primary from being called")
	}
}

func TestChainAllProvidersFailed(t *testing.T) {
	c := NewChain([]Provider{
		&fakeProvider{name: "a", fail: true},
		&fakeProvider{name: "b", fail: true},
	}, 3, time.Minute)

	_, _, err := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("error = %v, want ErrAllProvidersFailed", err)
	}
}

func TestChainProfileOrdering(t *testing.T) {
	cloud := &fakeProvider{name: "cloud"}
	local := &fakeProvider{name: "local"}
	c := NewChain([]Provider{cloud, local}, 3, time.Minute)
	c.SetOrder(ProfileQuality, []string{"cloud", "local"})
	c.SetOrder(ProfileCost, []string{"local", "cloud"})

	_, name, _ := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality)
	if name != "cloud" {
		t.Fatalf("quality profile picked %q, want cloud", name)
	}
	_, name, _ = c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileCost)
	if name != "local" {
		t.Fatalf("cost profile picked %q, want local", name)
	}
}

func TestChainBreakerSharedAcrossProfiles(t *testing.T) {
	flaky := &fakeProvider{name: "flaky", fail: true}
	backup := &fakeProvider{name: "backup"}
	c := NewChain([]Provider{flaky, backup}, 1, time.Minute)
	c.SetOrder(ProfileQuality, []string{"flaky", "backup"})
	c.SetOrder(ProfileLatency, []string{"flaky", "backup"})

	// One failure through the quality profile opens the shared breaker.
	c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileQuality)

	_, name, err := c.Synthesize(context.Background(), Request{Text: "hi"}, ProfileLatency)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if name != "backup" || flaky.calls != 1 {
		t.Fatal("breaker state must be shared across preference orderings")
	}
}

func TestChainSetOrderDropsUnknownProviders(t *testing.T) {
	p := &fakeProvider{name: "real"}
	c := NewChain([]Provider{p}, 3, time.Minute)
	c.SetOrder(ProfileQuality, []string{"ghost", "real"})

	order := c.Order(ProfileQuality)
	if len(order) != 1 || order[0] != "real" {
		t.Fatalf("Order() = %v, want [real]", order)
	}
}
