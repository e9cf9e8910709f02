package wire

import "testing"

func newTestPair(t *testing.T) (*Sender, *Receiver) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	aeadS, err := NewAEAD("chacha20poly1305", key)
	if err != nil {
		t.Fatal(err)
	}
	aeadR, err := NewAEAD("chacha20poly1305", key)
	if err != nil {
		t.Fatal(err)
	}
	ids := IDs{KemID: 1, KemParam: 2, SigID: 1, SigParam: 2}
	sessionID := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	sender := NewSender(1, ids, sessionID, 0, aeadS)
	receiver := NewReceiver(1, ids, sessionID, 0, aeadR, 1024)
	return sender, receiver
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sender, receiver := newTestPair(t)
	for i := 0; i < 5; i++ {
		wireBytes, err := sender.Encrypt([]byte("ping"))
		if err != nil {
			t.Fatal(err)
		}
		pt, err := receiver.Decrypt(wireBytes)
		if err != nil {
			t.Fatalf("decrypt %d: %v", i, err)
		}
		if string(pt) != "ping" {
			t.Errorf("got %q", pt)
		}
	}
}

func TestDecryptRejectsReplay(t *testing.T) {
	sender, receiver := newTestPair(t)
	wireBytes, err := sender.Encrypt([]byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := receiver.Decrypt(wireBytes); err != nil {
		t.Fatal(err)
	}
	if _, err := receiver.Decrypt(append([]byte(nil), wireBytes...)); err == nil {
		t.Fatal("expected replay rejection on second delivery")
	}
}

func TestDecryptRejectsSessionMismatch(t *testing.T) {
	sender, receiver := newTestPair(t)
	wireBytes, err := sender.Encrypt([]byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	receiver.SessionID[0] ^= 0xFF
	if _, err := receiver.Decrypt(wireBytes); err == nil {
		t.Fatal("expected session mismatch rejection")
	}
}

func TestDecryptRejectsCryptoIDMismatch(t *testing.T) {
	sender, receiver := newTestPair(t)
	wireBytes, err := sender.Encrypt([]byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	receiver.IDs.KemParam = 9
	if _, err := receiver.Decrypt(wireBytes); err == nil {
		t.Fatal("expected crypto id mismatch rejection")
	}
}
