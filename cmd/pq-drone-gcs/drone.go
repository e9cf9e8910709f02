package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kamalbura/research-sub001/internal/config"
	"github.com/Kamalbura/research-sub001/internal/control"
	"github.com/Kamalbura/research-sub001/internal/handshake"
	"github.com/Kamalbura/research-sub001/internal/identity"
	"github.com/Kamalbura/research-sub001/internal/logging"
	"github.com/Kamalbura/research-sub001/internal/metrics"
	"github.com/Kamalbura/research-sub001/internal/pqprim"
	"github.com/Kamalbura/research-sub001/internal/protoerr"
	"github.com/Kamalbura/research-sub001/internal/suite"
	"github.com/Kamalbura/research-sub001/internal/transport"
	"github.com/Kamalbura/research-sub001/internal/wire"
)

var (
	droneSuite          string
	dronePeerPubkeyFile string
	droneGCSPubHex      string
	droneStopSeconds    int
	droneEnvFile        string
)

var droneCmd = &cobra.Command{
	Use:   "drone",
	Short: "Run the drone side of the link",
	Long: `drone dials the GCS's TCP handshake port, negotiates a post-quantum
cipher suite, and then bridges encrypted UDP traffic with the local
flight-controller application.`,
	RunE: runDrone,
}

func init() {
	rootCmd.AddCommand(droneCmd)
	droneCmd.Flags().StringVar(&droneSuite, "suite", "cs-mlkem768-chacha20poly1305-mldsa65", "expected initial cipher suite")
	droneCmd.Flags().StringVar(&dronePeerPubkeyFile, "peer-pubkey-file", "", "file containing the GCS's signature public key")
	droneCmd.Flags().StringVar(&droneGCSPubHex, "gcs-pub-hex", "", "GCS signature public key, hex-encoded, overrides --peer-pubkey-file")
	droneCmd.Flags().IntVar(&droneStopSeconds, "stop-seconds", 0, "stop automatically after N seconds (0 = run until signalled)")
	droneCmd.Flags().StringVar(&droneEnvFile, "env-file", "", "optional .env file to preload configuration from")
}

func runDrone(cmd *cobra.Command, args []string) error {
	logger := logging.New("drone", "main")

	cfg, err := config.Load(droneEnvFile)
	if err != nil {
		return err
	}

	registry := suite.NewRegistry()
	initialSuiteID, err := registry.Resolve(droneSuite)
	if err != nil {
		return err
	}

	psk := cfg.DronePSK
	if len(psk) != 32 {
		return fmt.Errorf("drone: no PSK available: set DRONE_PSK")
	}

	gcsSigPub, err := resolveGCSPub(droneGCSPubHex, dronePeerPubkeyFile)
	if err != nil {
		return err
	}

	backend := pqprim.NewCirclBackend()
	gcsAddr := net.JoinHostPort(cfg.GCSHost, strconv.Itoa(cfg.TCPHandshakePort))

	hsClient := newDroneHandshaker(gcsAddr, registry, backend, gcsSigPub, psk, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)
	if droneStopSeconds > 0 {
		time.AfterFunc(time.Duration(droneStopSeconds)*time.Second, cancel)
	}

	logger.Printf("dialing gcs handshake at %s", gcsAddr)
	initialSession, err := hsClient.Next(ctx, initialSuiteID)
	if err != nil {
		return fmt.Errorf("drone: initial handshake failed: %w", err)
	}
	logger.Printf("handshake complete, session established on suite %s", initialSuiteID)

	counters := metrics.New("drone")
	ctrlState := control.New(control.RoleDrone, initialSuiteID, func(id string) bool {
		_, err := registry.Get(id)
		return err == nil
	}, nil)

	proxy := transport.New(transport.Config{
		Role:                 "drone",
		LocalIngressAddr:     net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.DronePlaintextTx)),
		LocalEgressAddr:      net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.DronePlaintextRx)),
		EncryptedBindAddr:    net.JoinHostPort("", strconv.Itoa(cfg.UDPDroneRx)),
		PeerEncryptedAddr:    net.JoinHostPort(cfg.GCSHost, strconv.Itoa(cfg.UDPGCSRx)),
		EnablePacketType:     cfg.EnablePacketType,
		StrictUDPPeerMatch:   cfg.StrictUDPPeerMatch,
		EncryptedDSCP:        cfg.EncryptedDSCP,
		ControlDrainInterval: 50 * time.Millisecond,
		RekeyTimeout:         time.Duration(cfg.RekeyHandshakeTimeoutSeconds) * time.Second,
	}, initialSession, counters, nil, ctrlState, hsClient.asHandshakeFunc())

	if err := proxy.Bind(); err != nil {
		return err
	}

	logger.Printf("proxy running")
	return proxy.Run(ctx)
}

func resolveGCSPub(hexKey, file string) ([]byte, error) {
	if hexKey != "" {
		b, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("drone: --gcs-pub-hex is not valid hex: %w", err)
		}
		return b, nil
	}
	if file != "" {
		return identity.LoadPublic(file)
	}
	return nil, fmt.Errorf("drone: must pass --peer-pubkey-file or --gcs-pub-hex")
}

// droneHandshaker dials the GCS anew for each handshake attempt: the
// initial bootstrap call and every later rekey both go through Next,
// matching spec.md section 4.5's drone-side row ("drone receives
// commit_rekey, dials out, runs ClientHandshake").
type droneHandshaker struct {
	gcsAddr    string
	registry   *suite.Registry
	primitives pqprim.Primitives
	gcsSigPub  []byte
	psk        []byte
	cfg        config.Config
	logger     *logging.Logger

	mu             sync.Mutex
	epoch          uint8
	epochExhausted bool
}

func newDroneHandshaker(gcsAddr string, registry *suite.Registry, primitives pqprim.Primitives, gcsSigPub, psk []byte, cfg config.Config) *droneHandshaker {
	return &droneHandshaker{
		gcsAddr:    gcsAddr,
		registry:   registry,
		primitives: primitives,
		gcsSigPub:  gcsSigPub,
		psk:        psk,
		cfg:        cfg,
		logger:     logging.New("drone", "handshake"),
	}
}

// Next dials out and runs a handshake targeting targetSuiteID. Epoch 255
// is used normally like any other epoch; only the attempt that would
// follow it (epoch 256, wrapping to 0) is refused outright, matching
// spec.md section 7's "255->0 transition is fatal" rather than treating
// 255 itself as unusable.
func (h *droneHandshaker) Next(ctx context.Context, targetSuiteID string) (*wire.SessionContext, error) {
	s, err := h.registry.Get(targetSuiteID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.epochExhausted {
		h.mu.Unlock()
		return nil, protoerr.ErrEpochWrapFatal
	}
	epoch := h.epoch
	h.mu.Unlock()

	dialer := net.Dialer{Timeout: time.Duration(h.cfg.RekeyHandshakeTimeoutSeconds) * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", h.gcsAddr)
	if err != nil {
		return nil, fmt.Errorf("droneHandshaker: dial %s: %w", h.gcsAddr, err)
	}
	defer conn.Close()

	res, err := handshake.ClientHandshake(conn, handshake.ClientConfig{
		WireVersion:   h.cfg.WireVersion,
		ExpectedSuite: s,
		GCSSigPub:     h.gcsSigPub,
		PSK:           h.psk,
		Primitives:    h.primitives,
		Epoch:         epoch,
		WindowWidth:   h.cfg.ReplayWindow,
		Timeout:       time.Duration(h.cfg.RekeyHandshakeTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if epoch == 255 {
		h.epochExhausted = true
	} else {
		h.epoch = epoch + 1
	}
	h.mu.Unlock()

	return res.Session, nil
}

func (h *droneHandshaker) asHandshakeFunc() transport.HandshakeFunc {
	return func(ctx context.Context, targetSuiteID string) (*wire.SessionContext, error) {
		return h.Next(ctx, targetSuiteID)
	}
}
