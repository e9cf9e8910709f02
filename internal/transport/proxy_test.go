package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Kamalbura/research-sub001/internal/control"
	"github.com/Kamalbura/research-sub001/internal/metrics"
	"github.com/Kamalbura/research-sub001/internal/wire"
)

func testSessionPair(t *testing.T) (a, b *wire.SessionContext) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	aead1, err := wire.NewAEAD("chacha20poly1305", key)
	if err != nil {
		t.Fatal(err)
	}
	aead2, err := wire.NewAEAD("chacha20poly1305", key)
	if err != nil {
		t.Fatal(err)
	}
	aead3, err := wire.NewAEAD("chacha20poly1305", key)
	if err != nil {
		t.Fatal(err)
	}
	aead4, err := wire.NewAEAD("chacha20poly1305", key)
	if err != nil {
		t.Fatal(err)
	}
	ids := wire.IDs{KemID: 1, KemParam: 2, SigID: 1, SigParam: 2}
	sessionID := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	a = &wire.SessionContext{
		SuiteID:   "cs-mlkem768-chacha20poly1305-mldsa65",
		SessionID: sessionID,
		IDs:       ids,
		Sender:    wire.NewSender(1, ids, sessionID, 0, aead1),
		Receiver:  wire.NewReceiver(1, ids, sessionID, 0, aead2, 1024),
	}
	b = &wire.SessionContext{
		SuiteID:   "cs-mlkem768-chacha20poly1305-mldsa65",
		SessionID: sessionID,
		IDs:       ids,
		Sender:    wire.NewSender(1, ids, sessionID, 0, aead3),
		Receiver:  wire.NewReceiver(1, ids, sessionID, 0, aead4, 1024),
	}
	return a, b
}

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

func noHandshake(context.Context, string) (*wire.SessionContext, error) {
	panic("not expected in this test")
}

// TestProxyBridgesPlaintext wires up two Proxy instances back to back
// (a's encrypted socket talks to b's) and confirms a datagram written to
// a's local ingress arrives decrypted at b's local egress.
func TestProxyBridgesPlaintext(t *testing.T) {
	sessA, sessB := testSessionPair(t)

	aIngress := freeUDPAddr(t)
	aEgress := freeUDPAddr(t)
	aEnc := freeUDPAddr(t)
	bIngress := freeUDPAddr(t)
	bEgress := freeUDPAddr(t)
	bEnc := freeUDPAddr(t)

	ctrlA := control.New(control.RoleGCS, sessA.SuiteID, func(string) bool { return true }, nil)
	ctrlB := control.New(control.RoleDrone, sessB.SuiteID, func(string) bool { return true }, nil)

	proxyA := New(Config{
		Role:                 "gcs",
		LocalIngressAddr:     aIngress,
		LocalEgressAddr:      aEgress,
		EncryptedBindAddr:    aEnc,
		PeerEncryptedAddr:    bEnc,
		EnablePacketType:     true,
		StrictUDPPeerMatch:   false,
		EncryptedDSCP:        -1,
		ControlDrainInterval: 10 * time.Millisecond,
		RekeyTimeout:         time.Second,
	}, sessA, metrics.New("gcs"), nil, ctrlA, noHandshake)

	proxyB := New(Config{
		Role:                 "drone",
		LocalIngressAddr:     bIngress,
		LocalEgressAddr:      bEgress,
		EncryptedBindAddr:    bEnc,
		PeerEncryptedAddr:    aEnc,
		EnablePacketType:     true,
		StrictUDPPeerMatch:   false,
		EncryptedDSCP:        -1,
		ControlDrainInterval: 10 * time.Millisecond,
		RekeyTimeout:         time.Second,
	}, sessB, metrics.New("drone"), nil, ctrlB, noHandshake)

	if err := proxyA.Bind(); err != nil {
		t.Fatal(err)
	}
	if err := proxyB.Bind(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go proxyA.Run(ctx)
	go proxyB.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	listener, err := net.ListenUDP("udp", mustResolve(t, bEgress))
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	sender, err := net.DialUDP("udp", nil, mustResolve(t, aIngress))
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	if _, err := sender.Write([]byte("telemetry-frame")); err != nil {
		t.Fatal(err)
	}

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("did not receive bridged datagram: %v", err)
	}
	if string(buf[:n]) != "telemetry-frame" {
		t.Fatalf("got %q", buf[:n])
	}
}

func mustResolve(t *testing.T, addr string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
