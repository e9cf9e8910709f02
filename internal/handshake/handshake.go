package handshake

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Kamalbura/research-sub001/internal/pqprim"
	"github.com/Kamalbura/research-sub001/internal/protoerr"
	"github.com/Kamalbura/research-sub001/internal/suite"
	"github.com/Kamalbura/research-sub001/internal/wire"
)

// Identity is the GCS's persistent signing keypair, loaded from the files
// written by `init-identity`.
type Identity struct {
	SigPub  []byte
	SigPriv []byte
}

// Result is everything a successful handshake hands back to the caller:
// the freshly built SessionContext plus the suite it negotiated.
type Result struct {
	Session *wire.SessionContext
	Suite   suite.Suite
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// buildSessionContext wires up a Sender/Receiver pair from raw key
// material, per role: drone treats key_d2g as send / key_g2d as recv, gcs
// is the mirror image (spec.md section 4.6).
func buildSessionContext(s suite.Suite, sessionID [8]byte, epoch uint8, windowWidth uint64, isServer bool, keyD2G, keyG2D []byte) (*wire.SessionContext, error) {
	kemID, kemParam, sigID, sigParam := s.HeaderIDs()
	ids := wire.IDs{KemID: kemID, KemParam: kemParam, SigID: sigID, SigParam: sigParam}

	var sendKey, recvKey []byte
	if isServer {
		sendKey, recvKey = keyG2D, keyD2G
	} else {
		sendKey, recvKey = keyD2G, keyG2D
	}

	sendAEAD, err := wire.NewAEAD(s.AEAD.Token, sendKey)
	if err != nil {
		return nil, err
	}
	recvAEAD, err := wire.NewAEAD(s.AEAD.Token, recvKey)
	if err != nil {
		return nil, err
	}

	return &wire.SessionContext{
		SuiteID:   s.SuiteID,
		SessionID: sessionID,
		IDs:       ids,
		Sender:    wire.NewSender(1, ids, sessionID, epoch, sendAEAD),
		Receiver:  wire.NewReceiver(1, ids, sessionID, epoch, recvAEAD, windowWidth),
	}, nil
}

// ServerConfig carries everything ServerHandshake needs beyond the
// connection itself.
type ServerConfig struct {
	WireVersion uint8
	Suite       suite.Suite
	Identity    Identity
	PSK         []byte
	Primitives  pqprim.Primitives
	Epoch       uint8
	WindowWidth uint64
	Timeout     time.Duration
}

// ServerHandshake runs the GCS side of the handshake over an already
// accepted TCP connection. It performs no rate limiting itself; the
// accept loop (internal/ratelimit) gates connections before this is
// called.
func ServerHandshake(conn net.Conn, cfg ServerConfig) (*Result, error) {
	if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	sessionIDBytes, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	challengeBytes, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	var sessionID, challenge [8]byte
	copy(sessionID[:], sessionIDBytes)
	copy(challenge[:], challengeBytes)

	kemPub, kemHandle, err := cfg.Primitives.KemKeygen(cfg.Suite.KEM.Token)
	if err != nil {
		return nil, fmt.Errorf("handshake: kem keygen: %w", err)
	}
	defer kemHandle.Zeroize()

	hello := &ServerHello{
		Version:   cfg.WireVersion,
		KemName:   cfg.Suite.KEM.Token,
		SigName:   cfg.Suite.Sig.Token,
		SessionID: sessionID,
		Challenge: challenge,
		KemPub:    kemPub,
	}
	sig, err := cfg.Primitives.SigSign(cfg.Suite.Sig.Token, cfg.Identity.SigPriv, hello.Transcript())
	if err != nil {
		return nil, fmt.Errorf("handshake: sign server hello: %w", err)
	}
	hello.Signature = sig

	helloBytes := hello.Marshal()
	if _, err := conn.Write(helloBytes); err != nil {
		return nil, fmt.Errorf("handshake: write server hello: %w", err)
	}

	reply, err := ReadClientReply(conn)
	if err != nil {
		return nil, err
	}

	expectedTag := hmacTag(cfg.PSK, helloBytes)
	if !hmac.Equal(expectedTag[:], reply.HMACTag[:]) {
		return nil, protoerr.ErrHandshakeVerify
	}

	sharedSecret, err := cfg.Primitives.KemDecap(cfg.Suite.KEM.Token, kemHandle, reply.KemCT)
	if err != nil {
		return nil, fmt.Errorf("handshake: kem decap: %w", err)
	}

	keyD2G, keyG2D, err := DeriveKeys(sharedSecret, sessionID, cfg.Suite.KEM.Token, cfg.Suite.Sig.Token)
	if err != nil {
		return nil, fmt.Errorf("handshake: derive keys: %w", err)
	}

	session, err := buildSessionContext(cfg.Suite, sessionID, cfg.Epoch, cfg.WindowWidth, true, keyD2G, keyG2D)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &Result{Session: session, Suite: cfg.Suite}, nil
}

// ClientConfig carries everything ClientHandshake needs.
type ClientConfig struct {
	WireVersion   uint8
	ExpectedSuite suite.Suite
	GCSSigPub     []byte
	PSK           []byte
	Primitives    pqprim.Primitives
	Epoch         uint8
	WindowWidth   uint64
	Timeout       time.Duration
}

// ClientHandshake runs the Drone side of the handshake over a freshly
// dialed TCP connection.
func ClientHandshake(conn net.Conn, cfg ClientConfig) (*Result, error) {
	if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	hello, err := ReadServerHello(conn)
	if err != nil {
		return nil, err
	}

	if hello.KemName != cfg.ExpectedSuite.KEM.Token || hello.SigName != cfg.ExpectedSuite.Sig.Token {
		return nil, protoerr.ErrDowngrade
	}

	ok, err := cfg.Primitives.SigVerify(cfg.ExpectedSuite.Sig.Token, cfg.GCSSigPub, hello.Transcript(), hello.Signature)
	if err != nil {
		return nil, fmt.Errorf("handshake: verify server hello: %w", err)
	}
	if !ok {
		return nil, protoerr.ErrHandshakeVerify
	}
	if hello.Version != cfg.WireVersion {
		// The signature already covers the version byte, so reaching
		// here with a mismatched version while the signature still
		// verified would mean our own expectation is stale, not that
		// the wire was tampered with; either way this is not a
		// negotiable condition.
		return nil, protoerr.ErrDowngrade
	}

	kemCT, sharedSecret, err := cfg.Primitives.KemEncap(cfg.ExpectedSuite.KEM.Token, hello.KemPub)
	if err != nil {
		return nil, fmt.Errorf("handshake: kem encap: %w", err)
	}

	helloBytes := hello.Marshal()
	tag := hmacTag(cfg.PSK, helloBytes)
	reply := &ClientReply{KemCT: kemCT, HMACTag: tag}
	if _, err := conn.Write(reply.Marshal()); err != nil {
		return nil, fmt.Errorf("handshake: write client reply: %w", err)
	}

	keyD2G, keyG2D, err := DeriveKeys(sharedSecret, hello.SessionID, cfg.ExpectedSuite.KEM.Token, cfg.ExpectedSuite.Sig.Token)
	if err != nil {
		return nil, fmt.Errorf("handshake: derive keys: %w", err)
	}

	session, err := buildSessionContext(cfg.ExpectedSuite, hello.SessionID, cfg.Epoch, cfg.WindowWidth, false, keyD2G, keyG2D)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &Result{Session: session, Suite: cfg.ExpectedSuite}, nil
}

func hmacTag(psk, data []byte) [32]byte {
	mac := hmac.New(sha256.New, psk)
	mac.Write(data)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
