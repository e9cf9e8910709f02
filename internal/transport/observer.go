package transport

// Observer is an extension point on the data-plane hot path, supplemental
// to the counters spec.md requires: grounded on
// pzverkov-Quantum-Go's Session.Observer interface (OnEncrypt,
// OnReplayDetected, OnAuthFailure, ...). The default NoopObserver costs
// nothing; a caller wanting richer telemetry than the Prometheus counters
// provide can implement this without touching the proxy loop.
type Observer interface {
	OnEncrypt(seq uint64)
	OnDecrypt(seq uint64)
	OnReplayDetected(seq uint64)
	OnAuthFailure()
}

// NoopObserver implements Observer with no-ops.
type NoopObserver struct{}

func (NoopObserver) OnEncrypt(uint64)      {}
func (NoopObserver) OnDecrypt(uint64)      {}
func (NoopObserver) OnReplayDetected(uint64) {}
func (NoopObserver) OnAuthFailure()        {}
