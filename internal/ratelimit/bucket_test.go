package ratelimit

import (
	"testing"
	"time"
)

func TestNewBucketStartsFull(t *testing.T) {
	b := NewBucket(10, 5)

	if b.Capacity() != 10 {
		t.Errorf("expected capacity 10, got %f", b.Capacity())
	}
	if b.RefillRate() != 5 {
		t.Errorf("expected refill rate 5, got %f", b.RefillRate())
	}
	if b.Tokens() < 9.9 { // allow small time drift
		t.Errorf("expected ~10 tokens, got %f", b.Tokens())
	}
}

func TestTryConsumeDrainsThenRejects(t *testing.T) {
	b := NewBucket(10, 1)

	if !b.TryConsume(5) {
		t.Error("expected consume of 5/10 to succeed")
	}
	if !b.TryConsume(3) {
		t.Error("expected consume of remaining ~5 down to 3 to succeed")
	}
	if b.TryConsume(5) {
		t.Error("expected consume of 5 against ~2 remaining to fail")
	}
}

func TestTryConsumeNegativeRefunds(t *testing.T) {
	b := NewBucket(10, 1)
	b.TryConsume(4)

	if !b.TryConsume(-1) {
		t.Error("expected a negative consume to succeed as a refund")
	}
	if tokens := b.Tokens(); tokens < 6.9 || tokens > 7.1 {
		t.Errorf("expected ~7 tokens after refunding 1, got %f", tokens)
	}
}

func TestRefillAccumulatesOverElapsedTime(t *testing.T) {
	b := NewBucket(10, 100) // 100 tokens/sec

	b.TryConsume(10)
	if b.Tokens() > 0.5 {
		t.Errorf("expected ~0 tokens right after draining, got %f", b.Tokens())
	}

	time.Sleep(50 * time.Millisecond) // should refill ~5 tokens

	tokens := b.Tokens()
	if tokens < 4 || tokens > 6 {
		t.Errorf("expected ~5 tokens after refill, got %f", tokens)
	}
}

func TestTimeToWaitMatchesRefillRate(t *testing.T) {
	b := NewBucket(10, 10) // 10 tokens/sec
	b.TryConsume(10)

	wait := b.TimeToWait(5) // needs 0.5s at 10 tokens/sec
	if wait < 400*time.Millisecond || wait > 600*time.Millisecond {
		t.Errorf("expected ~500ms wait, got %v", wait)
	}
}

func TestResetRefillsToCapacity(t *testing.T) {
	b := NewBucket(10, 1)

	b.TryConsume(8)
	b.Reset()

	if b.Tokens() < 9.9 {
		t.Errorf("expected ~10 tokens after reset, got %f", b.Tokens())
	}
}

func TestTokensNeverExceedCapacity(t *testing.T) {
	b := NewBucket(10, 100)

	time.Sleep(200 * time.Millisecond) // would accumulate well past capacity

	if b.Tokens() > 10.1 {
		t.Errorf("expected tokens capped at 10, got %f", b.Tokens())
	}
}
