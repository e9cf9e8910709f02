package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/Kamalbura/research-sub001/internal/pqprim"
	"github.com/Kamalbura/research-sub001/internal/suite"
)

func TestHandshakeRoundTrip(t *testing.T) {
	reg := suite.NewRegistry()
	s, err := reg.Get("cs-mlkem768-aesgcm-mldsa65")
	if err != nil {
		t.Fatal(err)
	}
	prims := pqprim.NewCirclBackend()

	sigPub, sigPriv, err := prims.SigKeygen(s.Sig.Token)
	if err != nil {
		t.Fatal(err)
	}
	psk := make([]byte, 32)
	for i := range psk {
		psk[i] = byte(i)
	}

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	type serverOutcome struct {
		res *Result
		err error
	}
	serverCh := make(chan serverOutcome, 1)
	go func() {
		res, err := ServerHandshake(serverConn, ServerConfig{
			WireVersion: 1,
			Suite:       s,
			Identity:    Identity{SigPub: sigPub, SigPriv: sigPriv},
			PSK:         psk,
			Primitives:  prims,
			WindowWidth: 1024,
			Timeout:     5 * time.Second,
		})
		serverCh <- serverOutcome{res, err}
	}()

	clientRes, err := ClientHandshake(clientConn, ClientConfig{
		WireVersion:   1,
		ExpectedSuite: s,
		GCSSigPub:     sigPub,
		PSK:           psk,
		Primitives:    prims,
		WindowWidth:   1024,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	out := <-serverCh
	if out.err != nil {
		t.Fatalf("server handshake: %v", out.err)
	}

	if clientRes.Session.SessionID != out.res.Session.SessionID {
		t.Fatal("session ids differ between client and server")
	}
}

func TestHandshakeRejectsBadPSK(t *testing.T) {
	reg := suite.NewRegistry()
	s, _ := reg.Get("cs-mlkem512-aesgcm-mldsa44")
	prims := pqprim.NewCirclBackend()
	sigPub, sigPriv, err := prims.SigKeygen(s.Sig.Token)
	if err != nil {
		t.Fatal(err)
	}
	psk := make([]byte, 32)
	badPSK := make([]byte, 32)
	badPSK[31] = 1

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, ServerConfig{
			WireVersion: 1, Suite: s, Identity: Identity{SigPub: sigPub, SigPriv: sigPriv},
			PSK: psk, Primitives: prims, WindowWidth: 1024, Timeout: 5 * time.Second,
		})
		errCh <- err
	}()

	_, err = ClientHandshake(clientConn, ClientConfig{
		WireVersion: 1, ExpectedSuite: s, GCSSigPub: sigPub,
		PSK: badPSK, Primitives: prims, WindowWidth: 1024, Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("client handshake unexpectedly failed before PSK is checked: %v", err)
	}

	serverErr := <-errCh
	if serverErr == nil {
		t.Fatal("expected server to reject mismatched PSK tag")
	}
}
