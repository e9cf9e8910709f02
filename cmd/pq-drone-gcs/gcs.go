package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kamalbura/research-sub001/internal/config"
	"github.com/Kamalbura/research-sub001/internal/consoleops"
	"github.com/Kamalbura/research-sub001/internal/control"
	"github.com/Kamalbura/research-sub001/internal/handshake"
	"github.com/Kamalbura/research-sub001/internal/identity"
	"github.com/Kamalbura/research-sub001/internal/logging"
	"github.com/Kamalbura/research-sub001/internal/metrics"
	"github.com/Kamalbura/research-sub001/internal/pqprim"
	"github.com/Kamalbura/research-sub001/internal/protoerr"
	"github.com/Kamalbura/research-sub001/internal/ratelimit"
	"github.com/Kamalbura/research-sub001/internal/suite"
	"github.com/Kamalbura/research-sub001/internal/transport"
	"github.com/Kamalbura/research-sub001/internal/wire"
)

var (
	gcsSuite          string
	gcsEphemeral      bool
	gcsSecretFile     string
	gcsStopSeconds    int
	gcsControlManual  bool
	gcsIdentityDir    string
	gcsEnvFile        string
)

var gcsCmd = &cobra.Command{
	Use:   "gcs",
	Short: "Run the ground-control-station side of the link",
	Long: `gcs listens for the drone's TCP handshake connection, negotiates a
post-quantum cipher suite, and then bridges encrypted UDP traffic with
the local ground-control application.`,
	RunE: runGCS,
}

func init() {
	rootCmd.AddCommand(gcsCmd)
	gcsCmd.Flags().StringVar(&gcsSuite, "suite", "cs-mlkem768-chacha20poly1305-mldsa65", "initial cipher suite to offer")
	gcsCmd.Flags().BoolVar(&gcsEphemeral, "ephemeral", false, "generate a random PSK for this run instead of reading one from config")
	gcsCmd.Flags().StringVar(&gcsSecretFile, "gcs-secret-file", "", "file containing the 64-hex-char PSK, overrides DRONE_PSK")
	gcsCmd.Flags().IntVar(&gcsStopSeconds, "stop-seconds", 0, "stop automatically after N seconds (0 = run until signalled)")
	gcsCmd.Flags().BoolVar(&gcsControlManual, "control-manual", false, "enable the interactive operator console on stdin")
	gcsCmd.Flags().StringVar(&gcsIdentityDir, "identity-dir", "./identity", "directory containing the signing keypair written by init-identity")
	gcsCmd.Flags().StringVar(&gcsEnvFile, "env-file", "", "optional .env file to preload configuration from")
}

func runGCS(cmd *cobra.Command, args []string) error {
	logger := logging.New("gcs", "main")

	cfg, err := config.Load(gcsEnvFile)
	if err != nil {
		return err
	}

	registry := suite.NewRegistry()
	initialSuiteID, err := registry.Resolve(gcsSuite)
	if err != nil {
		return err
	}

	psk, err := resolvePSK(cfg, gcsEphemeral, gcsSecretFile)
	if err != nil {
		return err
	}

	sigPub, sigPriv, err := identity.Load(gcsIdentityDir)
	if err != nil {
		return fmt.Errorf("gcs: loading identity from %s: %w (run init-identity first)", gcsIdentityDir, err)
	}

	backend := pqprim.NewCirclBackend()

	listenAddr := net.JoinHostPort("", strconv.Itoa(cfg.TCPHandshakePort))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("gcs: listening on %s: %w", listenAddr, err)
	}
	defer listener.Close()
	logger.Printf("listening for drone handshake on %s", listenAddr)

	hsServer := newGCSHandshaker(listener, registry, backend, handshake.Identity{SigPub: sigPub, SigPriv: sigPriv}, psk, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)
	if gcsStopSeconds > 0 {
		time.AfterFunc(time.Duration(gcsStopSeconds)*time.Second, cancel)
	}

	go hsServer.acceptLoop(ctx)

	logger.Printf("waiting for initial handshake toward suite %s", initialSuiteID)
	initialSession, err := hsServer.Next(ctx, initialSuiteID)
	if err != nil {
		return fmt.Errorf("gcs: initial handshake failed: %w", err)
	}
	logger.Printf("handshake complete, session established on suite %s", initialSuiteID)

	counters := metrics.New("gcs")
	ctrlState := control.New(control.RoleGCS, initialSuiteID, func(id string) bool {
		_, err := registry.Get(id)
		return err == nil
	}, nil)

	proxy := transport.New(transport.Config{
		Role:                 "gcs",
		LocalIngressAddr:     net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.GCSPlaintextTx)),
		LocalEgressAddr:      net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.GCSPlaintextRx)),
		EncryptedBindAddr:    net.JoinHostPort("", strconv.Itoa(cfg.UDPGCSRx)),
		PeerEncryptedAddr:    net.JoinHostPort(cfg.DroneHost, strconv.Itoa(cfg.UDPDroneRx)),
		EnablePacketType:     cfg.EnablePacketType,
		StrictUDPPeerMatch:   cfg.StrictUDPPeerMatch,
		EncryptedDSCP:        cfg.EncryptedDSCP,
		ControlDrainInterval: 50 * time.Millisecond,
		RekeyTimeout:         time.Duration(cfg.RekeyHandshakeTimeoutSeconds) * time.Second,
	}, initialSession, counters, nil, ctrlState, hsServer.asHandshakeFunc())

	if err := proxy.Bind(); err != nil {
		return err
	}

	if gcsControlManual {
		console := consoleops.New(ctrlState)
		go console.Run(ctx, cancel)
	}

	logger.Printf("proxy running")
	return proxy.Run(ctx)
}

func resolvePSK(cfg config.Config, ephemeral bool, secretFile string) ([]byte, error) {
	if ephemeral {
		psk := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, psk); err != nil {
			return nil, fmt.Errorf("generating ephemeral psk: %w", err)
		}
		return psk, nil
	}
	if secretFile != "" {
		b, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("reading psk file %s: %w", secretFile, err)
		}
		psk, err := hex.DecodeString(string(trimNewline(b)))
		if err != nil || len(psk) != 32 {
			return nil, fmt.Errorf("psk file %s must contain 64 hex chars encoding 32 bytes", secretFile)
		}
		return psk, nil
	}
	if len(cfg.DronePSK) != 32 {
		return nil, fmt.Errorf("no PSK available: pass --ephemeral, --gcs-secret-file, or set DRONE_PSK")
	}
	return cfg.DronePSK, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}

func installSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
}

// gcsHandshaker owns the GCS's TCP accept loop, rate limiter, and epoch
// bookkeeping, and exposes Next as both the bootstrap call and the
// transport.HandshakeFunc used for later rekeys: the GCS always offers
// the next accepted connection the suite passed to Next, since this
// link serves exactly one drone at a time (spec.md section 4.5: GCS
// always initiates, so it always knows in advance which suite the next
// handshake should target).
type gcsHandshaker struct {
	listener   net.Listener
	registry   *suite.Registry
	primitives pqprim.Primitives
	identity   handshake.Identity
	psk        []byte
	cfg        config.Config
	limiter    *ratelimit.Guard
	logger     *logging.Logger

	mu              sync.Mutex
	targetSuite     string
	epoch           uint8
	epochExhausted  bool

	resultCh chan gcsHandshakeOutcome
}

type gcsHandshakeOutcome struct {
	session *wire.SessionContext
	err     error
}

func newGCSHandshaker(listener net.Listener, registry *suite.Registry, primitives pqprim.Primitives, id handshake.Identity, psk []byte, cfg config.Config) *gcsHandshaker {
	return &gcsHandshaker{
		listener:   listener,
		registry:   registry,
		primitives: primitives,
		identity:   id,
		psk:        psk,
		cfg:        cfg,
		limiter:    ratelimit.NewGuard(cfg.HandshakeRLBurst, cfg.HandshakeRLRefillPerSec),
		logger:     logging.New("gcs", "handshake"),
		resultCh:   make(chan gcsHandshakeOutcome, 1),
	}
}

func (h *gcsHandshaker) acceptLoop(ctx context.Context) {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Printf("accept error: %v", err)
			continue
		}
		go h.serveOne(conn)
	}
}

func (h *gcsHandshaker) serveOne(conn net.Conn) {
	defer conn.Close()
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	if !h.limiter.Allow(host) {
		h.logger.Printf("rate limit rejected handshake attempt from %s", host)
		return
	}

	h.mu.Lock()
	if h.epochExhausted {
		h.mu.Unlock()
		h.resultCh <- gcsHandshakeOutcome{err: protoerr.ErrEpochWrapFatal}
		return
	}
	targetID := h.targetSuite
	epoch := h.epoch
	h.mu.Unlock()

	s, err := h.registry.Get(targetID)
	if err != nil {
		h.resultCh <- gcsHandshakeOutcome{err: err}
		return
	}

	res, err := handshake.ServerHandshake(conn, handshake.ServerConfig{
		WireVersion: h.cfg.WireVersion,
		Suite:       s,
		Identity:    h.identity,
		PSK:         h.psk,
		Primitives:  h.primitives,
		Epoch:       epoch,
		WindowWidth: h.cfg.ReplayWindow,
		Timeout:     time.Duration(h.cfg.RekeyHandshakeTimeoutSeconds) * time.Second,
	})
	if err != nil {
		h.resultCh <- gcsHandshakeOutcome{err: err}
		return
	}

	// Epoch 255 is the last valid epoch (spec.md section 7): it is used
	// normally here, and only the *next* rekey attempt -- which would
	// need epoch 256, wrapping to 0 -- is refused.
	h.mu.Lock()
	if epoch == 255 {
		h.epochExhausted = true
	} else {
		h.epoch = epoch + 1
	}
	h.mu.Unlock()

	h.resultCh <- gcsHandshakeOutcome{session: res.Session}
}

// Next targets targetSuiteID for the next accepted connection and blocks
// for its outcome. Once the session has used epoch 255, every subsequent
// call fails fatally without attempting a handshake: the 255->0 epoch
// wrap is forbidden outright (spec.md section 7 and section 8 scenario
// S6), so the proxy must exit rather than negotiate a new session whose
// epoch would repeat.
func (h *gcsHandshaker) Next(ctx context.Context, targetSuiteID string) (*wire.SessionContext, error) {
	h.mu.Lock()
	if h.epochExhausted {
		h.mu.Unlock()
		return nil, protoerr.ErrEpochWrapFatal
	}
	h.targetSuite = targetSuiteID
	h.mu.Unlock()

	select {
	case out := <-h.resultCh:
		return out.session, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *gcsHandshaker) asHandshakeFunc() transport.HandshakeFunc {
	return func(ctx context.Context, targetSuiteID string) (*wire.SessionContext, error) {
		return h.Next(ctx, targetSuiteID)
	}
}
