// Package config assembles the immutable Config value read once at
// startup from the process environment (optionally preloaded from a
// .env file), per spec.md section 6 and section 9 Design Notes
// ("model as an immutable Config value constructed at startup; do not
// read environment variables inside the data path"). The typed-struct-
// with-explicit-defaults shape follows the teacher's
// PAL/server_configuration/configuration.go NewDefaultConfiguration
// pattern, adapted from JSON-file loading to environment variables since
// spec.md defines configuration purely in terms of env vars.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full set of recognized options from spec.md section 6.
type Config struct {
	WireVersion uint8

	TCPHandshakePort int
	UDPGCSRx         int
	UDPDroneRx       int
	GCSHost          string
	DroneHost        string

	GCSPlaintextTx   int
	GCSPlaintextRx   int
	DronePlaintextTx int
	DronePlaintextRx int

	ReplayWindow uint64

	EnablePacketType   bool
	StrictUDPPeerMatch bool

	HandshakeRLBurst        float64
	HandshakeRLRefillPerSec float64

	DronePSK []byte

	EncryptedDSCP int // -1 means unset

	RekeyHandshakeTimeoutSeconds int
}

// Default returns the spec's documented defaults before any environment
// overrides are applied.
func Default() Config {
	return Config{
		WireVersion:                  1,
		TCPHandshakePort:             5800,
		UDPGCSRx:                     5801,
		UDPDroneRx:                   5802,
		GCSHost:                      "127.0.0.1",
		DroneHost:                    "127.0.0.1",
		GCSPlaintextTx:               6800,
		GCSPlaintextRx:               6801,
		DronePlaintextTx:             6802,
		DronePlaintextRx:             6803,
		ReplayWindow:                 1024,
		EnablePacketType:             true,
		StrictUDPPeerMatch:           true,
		HandshakeRLBurst:             5,
		HandshakeRLRefillPerSec:      1,
		EncryptedDSCP:                -1,
		RekeyHandshakeTimeoutSeconds: 20,
	}
}

// Load preloads a .env file (if present, ignoring a missing file) and
// overlays every recognized environment variable onto Default().
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}
	cfg := Default()

	if v, ok := os.LookupEnv("WIRE_VERSION"); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return Config{}, fmt.Errorf("config: WIRE_VERSION: %w", err)
		}
		cfg.WireVersion = uint8(n)
	}
	if err := overlayInt(&cfg.TCPHandshakePort, "TCP_HANDSHAKE_PORT"); err != nil {
		return Config{}, err
	}
	if err := overlayInt(&cfg.UDPGCSRx, "UDP_GCS_RX"); err != nil {
		return Config{}, err
	}
	if err := overlayInt(&cfg.UDPDroneRx, "UDP_DRONE_RX"); err != nil {
		return Config{}, err
	}
	overlayString(&cfg.GCSHost, "GCS_HOST")
	overlayString(&cfg.DroneHost, "DRONE_HOST")
	if err := overlayInt(&cfg.GCSPlaintextTx, "GCS_PLAINTEXT_TX"); err != nil {
		return Config{}, err
	}
	if err := overlayInt(&cfg.GCSPlaintextRx, "GCS_PLAINTEXT_RX"); err != nil {
		return Config{}, err
	}
	if err := overlayInt(&cfg.DronePlaintextTx, "DRONE_PLAINTEXT_TX"); err != nil {
		return Config{}, err
	}
	if err := overlayInt(&cfg.DronePlaintextRx, "DRONE_PLAINTEXT_RX"); err != nil {
		return Config{}, err
	}
	if v, ok := os.LookupEnv("REPLAY_WINDOW"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: REPLAY_WINDOW: %w", err)
		}
		cfg.ReplayWindow = n
	}
	if err := overlayBool(&cfg.EnablePacketType, "ENABLE_PACKET_TYPE"); err != nil {
		return Config{}, err
	}
	if err := overlayBool(&cfg.StrictUDPPeerMatch, "STRICT_UDP_PEER_MATCH"); err != nil {
		return Config{}, err
	}
	if err := overlayFloat(&cfg.HandshakeRLBurst, "HANDSHAKE_RL_BURST"); err != nil {
		return Config{}, err
	}
	if err := overlayFloat(&cfg.HandshakeRLRefillPerSec, "HANDSHAKE_RL_REFILL_PER_SEC"); err != nil {
		return Config{}, err
	}
	if v, ok := os.LookupEnv("DRONE_PSK"); ok {
		psk, err := hex.DecodeString(v)
		if err != nil || len(psk) != 32 {
			return Config{}, fmt.Errorf("config: DRONE_PSK must be 64 hex chars encoding 32 bytes")
		}
		cfg.DronePSK = psk
	}
	if v, ok := os.LookupEnv("ENCRYPTED_DSCP"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 63 {
			return Config{}, fmt.Errorf("config: ENCRYPTED_DSCP must be 0-63")
		}
		cfg.EncryptedDSCP = n
	}
	if err := overlayInt(&cfg.RekeyHandshakeTimeoutSeconds, "REKEY_HANDSHAKE_TIMEOUT"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func overlayInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func overlayFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func overlayBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

func overlayString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
