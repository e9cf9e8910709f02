package wire

import "testing"

func TestReplayWindowBoundary(t *testing.T) {
	w := NewReplayWindow(64)
	w.Accept(100)

	if err := w.Check(30); err == nil {
		t.Error("seq 30 should be rejected as too old (offset 70 >= width 64)")
	}
	if err := w.Check(37); err != nil {
		t.Errorf("seq 37 should be accepted (offset 63 < width 64): %v", err)
	}
	w.Accept(37)
	if err := w.Check(37); err == nil {
		t.Error("seq 37 replayed a second time should be rejected")
	}
}

func TestReplayWindowAdvance(t *testing.T) {
	w := NewReplayWindow(64)
	w.Accept(10)
	if err := w.Check(10); err == nil {
		t.Error("seq 10 already accepted should be rejected on replay")
	}
	w.Accept(11)
	if err := w.Check(10); err != nil {
		t.Errorf("seq 10 should still be within the window after advancing to 11: %v", err)
	}
}

func TestReplayWindowOutOfOrderThenInOrder(t *testing.T) {
	w := NewReplayWindow(1024)
	order := []uint64{5, 3, 4, 1, 2}
	for _, seq := range order {
		if err := w.Check(seq); err != nil {
			t.Fatalf("seq %d unexpectedly rejected: %v", seq, err)
		}
		w.Accept(seq)
	}
	for _, seq := range order {
		if err := w.Check(seq); err == nil {
			t.Errorf("seq %d should now be rejected as replay", seq)
		}
	}
}
