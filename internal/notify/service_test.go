package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	kit "lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

type fakeAdapter struct {
	calls int
	failN int // fail the first failN calls
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.calls++
	if f.calls <= f.failN {
		return kit.MessageRef{}, errors.New("flaky")
	}
	return kit.MessageRef{}, nil
}

func testConfig(retryMax int) Config {
	return Config{RatePerSec: 1000, RetryMax: retryMax, RetryBase: time.Millisecond}
}

func TestSendSuccess(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(testConfig(2), ad, logx.Nop())

	if err := s.Send(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ad.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", ad.calls)
	}
	sent, failed := s.Stats()
	if sent != 1 || failed != 0 {
		t.Fatalf("unexpected stats: sent=%d failed=%d", sent, failed)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	ad := &fakeAdapter{failN: 2}
	s := New(testConfig(3), ad, logx.Nop())

	if err := s.Send(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ad.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", ad.calls)
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	ad := &fakeAdapter{failN: 100}
	s := New(testConfig(2), ad, logx.Nop())

	if err := s.Send(context.Background(), 1, "hi", nil); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if ad.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", ad.calls)
	}
	sent, failed := s.Stats()
	if sent != 0 || failed != 1 {
		t.Fatalf("unexpected stats: sent=%d failed=%d", sent, failed)
	}
}

func TestSendHonorsContextBetweenRetries(t *testing.T) {
	ad := &fakeAdapter{failN: 100}
	s := New(Config{RatePerSec: 1000, RetryMax: 5, RetryBase: time.Hour}, ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, 1, "hi", nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Send did not return after cancellation")
	}
}
