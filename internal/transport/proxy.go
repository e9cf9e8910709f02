// Package transport implements the selector-driven bidirectional UDP
// bridge of spec.md section 4.4: one local plaintext socket pair, one
// encrypted peer socket, an atomically-published active SessionContext,
// source-address pinning, and classified drop counters. Grounded on
// original_source/core/async_proxy.py's run_proxy main loop for the
// control-flow shape and on the teacher's non-blocking per-socket
// goroutine style (application/udp_listener.go,
// application/transport_handler.go) for the Go idiom: rather than a
// literal OS-level selector, each socket gets its own goroutine blocking
// on read, which is the idiomatic Go rendition of "single-threaded
// cooperative loop... built on a non-blocking selector" (see DESIGN.md) --
// the Go runtime scheduler is the selector for these blocking syscalls,
// and no goroutine here ever blocks on a lock or on handshake/KEM work.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kamalbura/research-sub001/internal/control"
	"github.com/Kamalbura/research-sub001/internal/logging"
	"github.com/Kamalbura/research-sub001/internal/metrics"
	"github.com/Kamalbura/research-sub001/internal/protoerr"
	"github.com/Kamalbura/research-sub001/internal/wire"
)

const (
	packetTypeData    = 0x01
	packetTypeControl = 0x02

	maxDatagramSize = 65507
)

// HandshakeFunc performs a full off-path handshake toward targetSuiteID
// and returns the freshly built SessionContext. The concrete
// implementation (server-accept vs client-dial) is supplied by the CLI
// wiring in cmd/pq-drone-gcs, keeping this package ignorant of which role
// it runs as beyond the Role field below.
type HandshakeFunc func(ctx context.Context, targetSuiteID string) (*wire.SessionContext, error)

// Config configures one running Proxy instance.
type Config struct {
	Role string // "gcs" or "drone", used only for logging and metrics labels

	LocalIngressAddr string // local app writes plaintext here
	LocalEgressAddr  string // we write decrypted plaintext here, for the app to read
	EncryptedBindAddr string
	PeerEncryptedAddr string

	EnablePacketType   bool
	StrictUDPPeerMatch bool
	EncryptedDSCP      int // -1 = unset

	ControlDrainInterval time.Duration
	RekeyTimeout         time.Duration
}

// Proxy bridges a local plaintext UDP socket and a peer encrypted UDP
// socket under one active SessionContext, replaceable by atomic swap.
type Proxy struct {
	cfg      Config
	ctxSlot  atomic.Pointer[wire.SessionContext]
	pinned   atomic.Pointer[net.UDPAddr]
	counters *metrics.Counters
	observer Observer
	logger   *logging.Logger
	control  *control.State
	handshake HandshakeFunc

	peerAddr *net.UDPAddr

	localIngress      *net.UDPConn
	localEgress       *net.UDPConn
	localEgressTarget *net.UDPAddr
	encConn           *net.UDPConn

	rekeyInFlight atomic.Bool
	fatalCh       chan error
}

// New constructs a Proxy. The caller must call Bind before Run.
func New(cfg Config, initial *wire.SessionContext, counters *metrics.Counters, observer Observer, ctrl *control.State, hs HandshakeFunc) *Proxy {
	if observer == nil {
		observer = NoopObserver{}
	}
	p := &Proxy{
		cfg:       cfg,
		counters:  counters,
		observer:  observer,
		logger:    logging.New(cfg.Role, "transport"),
		control:   ctrl,
		handshake: hs,
		fatalCh:   make(chan error, 1),
	}
	p.ctxSlot.Store(initial)
	return p
}

// Bind opens the three UDP sockets this proxy needs.
func (p *Proxy) Bind() error {
	ingressAddr, err := net.ResolveUDPAddr("udp", p.cfg.LocalIngressAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve local ingress addr: %w", err)
	}
	p.localIngress, err = net.ListenUDP("udp", ingressAddr)
	if err != nil {
		return fmt.Errorf("transport: bind local ingress: %w", err)
	}

	p.localEgress, err = net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("transport: bind local egress: %w", err)
	}

	encAddr, err := net.ResolveUDPAddr("udp", p.cfg.EncryptedBindAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve encrypted bind addr: %w", err)
	}
	p.encConn, err = net.ListenUDP("udp", encAddr)
	if err != nil {
		return fmt.Errorf("transport: bind encrypted socket: %w", err)
	}
	if p.cfg.EncryptedDSCP >= 0 {
		if err := setDSCP(p.encConn, p.cfg.EncryptedDSCP); err != nil {
			p.logger.Printf("warning: failed to set DSCP on encrypted socket: %v", err)
		}
	}

	p.peerAddr, err = net.ResolveUDPAddr("udp", p.cfg.PeerEncryptedAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve peer encrypted addr: %w", err)
	}

	egressAddr, err := net.ResolveUDPAddr("udp", p.cfg.LocalEgressAddr)
	if err != nil {
		return fmt.Errorf("transport: resolve local egress addr: %w", err)
	}
	p.localEgressTarget = egressAddr
	return nil
}

// Run drives the proxy until ctx is cancelled. It returns the final
// counters snapshot implicitly via p.counters (the caller holds the same
// pointer it passed to New).
func (p *Proxy) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.appToPeerLoop(ctx) })
	g.Go(func() error { return p.peerToAppLoop(ctx) })
	g.Go(func() error { return p.controlDrainLoop(ctx) })

	// A fatal rekey outcome (epoch would wrap from 255 to 0) must stop
	// the whole proxy and surface a non-zero exit, per spec.md section 7
	// and section 8 scenario S6 -- it is not an ordinary failed rekey.
	g.Go(func() error {
		select {
		case err := <-p.fatalCh:
			return err
		case <-ctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		p.localIngress.Close()
		p.localEgress.Close()
		p.encConn.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Proxy) appToPeerLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := p.localIngress.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transport: local ingress read: %w", err)
		}
		p.counters.PtxIn.Inc()

		sess := p.ctxSlot.Load()
		plaintext := buf[:n]
		if p.cfg.EnablePacketType {
			tagged := make([]byte, 1+n)
			tagged[0] = packetTypeData
			copy(tagged[1:], plaintext)
			plaintext = tagged
		}

		wireBytes, err := sess.Sender.Encrypt(plaintext)
		if err != nil {
			if errors.Is(err, protoerr.ErrSeqExhausted) {
				p.logger.Printf("sender sequence space exhausted on suite %s; operator must request a rekey", sess.SuiteID)
			}
			p.counters.Drop("seq_exhausted")
			continue
		}
		if _, err := p.encConn.WriteToUDP(wireBytes, p.peerAddr); err != nil {
			p.logger.Printf("encrypted write failed: %v", err)
			p.counters.Drop("send_error")
			continue
		}
		p.counters.EncOut.Inc()
		p.observer.OnEncrypt(0)
	}
}

func (p *Proxy) peerToAppLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, srcAddr, err := p.encConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transport: encrypted read: %w", err)
		}
		p.counters.EncIn.Inc()

		if p.cfg.StrictUDPPeerMatch {
			if pinned := p.pinned.Load(); pinned != nil && !addrEqual(pinned, srcAddr) {
				p.counters.Drop(string(protoerr.DropSrcAddr))
				continue
			}
		}

		sess := p.ctxSlot.Load()
		plaintext, err := sess.Receiver.Decrypt(buf[:n])
		if err != nil {
			kind := protoerr.Classify(err)
			p.counters.Drop(string(kind))
			if errors.Is(err, protoerr.ErrReplay) {
				p.observer.OnReplayDetected(0)
			} else if errors.Is(err, protoerr.ErrAuthFail) {
				p.observer.OnAuthFailure()
			}
			continue
		}
		if p.cfg.StrictUDPPeerMatch && p.pinned.Load() == nil {
			p.pinned.Store(srcAddr)
		}
		p.observer.OnDecrypt(0)

		if !p.cfg.EnablePacketType {
			p.deliverToApp(plaintext)
			continue
		}
		if len(plaintext) == 0 {
			p.counters.Drop(string(protoerr.DropOther))
			continue
		}
		switch plaintext[0] {
		case packetTypeData:
			p.deliverToApp(plaintext[1:])
		case packetTypeControl:
			p.handleControlPayload(ctx, plaintext[1:])
		default:
			p.counters.Drop(string(protoerr.DropOther))
		}
	}
}

func (p *Proxy) deliverToApp(plaintext []byte) {
	if _, err := p.localEgress.WriteToUDP(plaintext, p.localEgressTarget); err != nil {
		p.logger.Printf("local egress write failed: %v", err)
		p.counters.Drop(string(protoerr.DropOther))
		return
	}
	p.counters.PtxOut.Inc()
}

func (p *Proxy) handleControlPayload(ctx context.Context, payload []byte) {
	msg, err := control.Decode(payload)
	if err != nil {
		p.counters.Drop(string(protoerr.DropOther))
		return
	}
	res, err := p.control.HandleControl(msg)
	if err != nil {
		p.logger.Printf("control message %q rejected: %v", msg.Type, err)
		return
	}
	if res.StartHandshake {
		p.startRekey(ctx, res.Rid, res.TargetSuite)
	}
}

// startRekey launches the off-path handshake worker, bounded by
// RekeyTimeout, per spec.md section 4.5 and section 5's cancellation
// rules. Concurrent requests are rejected by the control state machine
// itself (ErrBusy), so rekeyInFlight here only guards against the
// handshake worker racing its own completion handling.
func (p *Proxy) startRekey(parent context.Context, rid, targetSuiteID string) {
	if !p.rekeyInFlight.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.rekeyInFlight.Store(false)
		start := time.Now()
		ctx, cancel := context.WithTimeout(parent, p.cfg.RekeyTimeout)
		defer cancel()

		newSession, err := p.handshake(ctx, targetSuiteID)
		elapsedMs := time.Since(start).Milliseconds()
		if err != nil {
			p.counters.RekeysFail.Inc()
			p.control.RecordRekeyResult(rid, false, targetSuiteID, elapsedMs)
			if errors.Is(err, protoerr.ErrEpochWrapFatal) {
				p.logger.Printf("fatal: rekey toward %s would wrap epoch past 255; exiting", targetSuiteID)
				select {
				case p.fatalCh <- err:
				default:
				}
				return
			}
			p.logger.Printf("rekey toward %s failed: %v", targetSuiteID, err)
			return
		}
		p.ctxSlot.Store(newSession)
		p.pinned.Store(nil)
		p.counters.RekeysOK.Inc()
		p.control.RecordRekeyResult(rid, true, targetSuiteID, elapsedMs)
		p.logger.Printf("rekey to %s completed in %dms", targetSuiteID, elapsedMs)
	}()
}

func (p *Proxy) controlDrainLoop(ctx context.Context) error {
	interval := p.cfg.ControlDrainInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, msg := range p.control.Drain() {
				p.sendControl(msg)
			}
		}
	}
}

func (p *Proxy) sendControl(msg control.Message) {
	if !p.cfg.EnablePacketType {
		p.logger.Printf("control plane requires packet typing to be enabled; dropping %s message", msg.Type)
		return
	}
	sess := p.ctxSlot.Load()
	payload, err := control.Encode(msg)
	if err != nil {
		p.logger.Printf("failed to encode control message: %v", err)
		return
	}
	tagged := make([]byte, 1+len(payload))
	tagged[0] = packetTypeControl
	copy(tagged[1:], payload)

	wireBytes, err := sess.Sender.Encrypt(tagged)
	if err != nil {
		p.logger.Printf("failed to encrypt control message: %v", err)
		return
	}
	if _, err := p.encConn.WriteToUDP(wireBytes, p.peerAddr); err != nil {
		p.logger.Printf("failed to send control message: %v", err)
		return
	}
	p.counters.EncOut.Inc()
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
