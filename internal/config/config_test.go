package config

import "testing"

func TestLoadOverlaysEnvOnDefaults(t *testing.T) {
	t.Setenv("TCP_HANDSHAKE_PORT", "9999")
	t.Setenv("REPLAY_WINDOW", "2048")
	t.Setenv("STRICT_UDP_PEER_MATCH", "false")
	t.Setenv("DRONE_PSK", "00112233445566778899aabbccddeeff00112233445566778899aabbccddee")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TCPHandshakePort != 9999 {
		t.Errorf("TCPHandshakePort = %d, want 9999", cfg.TCPHandshakePort)
	}
	if cfg.ReplayWindow != 2048 {
		t.Errorf("ReplayWindow = %d, want 2048", cfg.ReplayWindow)
	}
	if cfg.StrictUDPPeerMatch {
		t.Error("StrictUDPPeerMatch should have been overridden to false")
	}
	if len(cfg.DronePSK) != 32 {
		t.Errorf("DronePSK length = %d, want 32", len(cfg.DronePSK))
	}
	// untouched default
	if cfg.HandshakeRLBurst != 5 {
		t.Errorf("HandshakeRLBurst = %v, want default 5", cfg.HandshakeRLBurst)
	}
}

func TestLoadRejectsBadPSK(t *testing.T) {
	t.Setenv("DRONE_PSK", "not-hex")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed DRONE_PSK")
	}
}
