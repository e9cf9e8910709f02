package wire

import (
	"fmt"
	"sync"

	"github.com/Kamalbura/research-sub001/internal/protoerr"
)

// ReplayWindow is a sliding bitmap of configurable width anchored at the
// highest accepted sequence number, split into a read-only Check (run
// before AEAD-open, since decryption may legitimately fail for reasons
// other than replay) and a commit-only Accept (run only after a
// successful AEAD-open), per spec.md section 4.2 steps 6 and 8. This
// mirrors the teacher's replay_window.go, whose single-call Validate
// method is explicitly documented there as unsuitable for UDP for the
// same reason.
type ReplayWindow struct {
	mu        sync.Mutex
	width     uint64
	highest   uint64
	have      bool
	bitmap    []uint64 // little-endian bit i => offset i from highest
}

const wordBits = 64

// NewReplayWindow builds a window of the given bit width (spec default
// 1024, configurable via REPLAY_WINDOW).
func NewReplayWindow(width uint64) *ReplayWindow {
	if width == 0 {
		width = 1024
	}
	words := (width + wordBits - 1) / wordBits
	return &ReplayWindow{width: width, bitmap: make([]uint64, words)}
}

func (w *ReplayWindow) bitSet(offset uint64) bool {
	word := offset / wordBits
	bit := offset % wordBits
	if int(word) >= len(w.bitmap) {
		return false
	}
	return w.bitmap[word]&(1<<bit) != 0
}

func (w *ReplayWindow) setBit(offset uint64) {
	word := offset / wordBits
	bit := offset % wordBits
	if int(word) >= len(w.bitmap) {
		return
	}
	w.bitmap[word] |= 1 << bit
}

// Check reports whether seq would be accepted, without mutating state.
// Call this before attempting AEAD-open.
func (w *ReplayWindow) Check(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.have {
		return nil
	}
	if seq > w.highest {
		return nil
	}
	offset := w.highest - seq
	if offset >= w.width {
		return fmt.Errorf("%w: seq %d is older than window width %d", protoerr.ErrReplay, seq, w.width)
	}
	if w.bitSet(offset) {
		return fmt.Errorf("%w: seq %d already accepted", protoerr.ErrReplay, seq)
	}
	return nil
}

// Accept commits seq into the window. Call this only after a successful
// AEAD-open, per spec.md section 4.2 step 8.
func (w *ReplayWindow) Accept(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.have {
		w.have = true
		w.highest = seq
		w.setBit(0)
		return
	}
	if seq > w.highest {
		shift := seq - w.highest
		w.shiftBitmap(shift)
		w.highest = seq
		w.setBit(0)
		return
	}
	offset := w.highest - seq
	w.setBit(offset)
}

// shiftBitmap moves the window forward by `shift` positions, discarding
// bits that fall outside the new width.
func (w *ReplayWindow) shiftBitmap(shift uint64) {
	if shift >= w.width {
		for i := range w.bitmap {
			w.bitmap[i] = 0
		}
		return
	}
	wordShift := int(shift / wordBits)
	bitShift := uint(shift % wordBits)
	n := len(w.bitmap)
	if wordShift > 0 {
		for i := n - 1; i >= 0; i-- {
			if i-wordShift >= 0 {
				w.bitmap[i] = w.bitmap[i-wordShift]
			} else {
				w.bitmap[i] = 0
			}
		}
	}
	if bitShift > 0 {
		var carry uint64
		for i := 0; i < n; i++ {
			cur := w.bitmap[i]
			w.bitmap[i] = (cur << bitShift) | carry
			carry = cur >> (wordBits - bitShift)
		}
	}
}
