package ratelimit

import (
	"testing"
	"time"
)

func TestGuardBurstThenRefuse(t *testing.T) {
	g := NewGuard(5, 1)
	fixed := time.Unix(0, 0)
	g.now = func() time.Time { return fixed }

	for i := 0; i < 5; i++ {
		if !g.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed within burst capacity", i)
		}
	}
	if g.Allow("10.0.0.1") {
		t.Fatal("6th immediate attempt should be refused")
	}
}

func TestGuardRefillsOverTime(t *testing.T) {
	g := NewGuard(5, 1)
	cur := time.Unix(0, 0)
	g.now = func() time.Time { return cur }

	for i := 0; i < 5; i++ {
		g.Allow("10.0.0.2")
	}
	if g.Allow("10.0.0.2") {
		t.Fatal("bucket should be empty")
	}
	cur = cur.Add(2 * time.Second)
	if !g.Allow("10.0.0.2") {
		t.Fatal("bucket should have refilled after 2 seconds at 1/s")
	}
}

func TestGuardPerIPIsolation(t *testing.T) {
	g := NewGuard(1, 1)
	fixed := time.Unix(0, 0)
	g.now = func() time.Time { return fixed }

	if !g.Allow("10.0.0.3") {
		t.Fatal("first ip should be allowed")
	}
	if !g.Allow("10.0.0.4") {
		t.Fatal("second, distinct ip should not be penalized by the first")
	}
}
