package detect

import "blockpatterns.dev/internal/verify"

// Sink receives verified matches. Emit must not block the caller for long;
// sinks that do I/O queue internally.
type Sink interface {
	Emit(m verify.Match)
}

type SinkFunc func(m verify.Match)

func (f SinkFunc) Emit(m verify.Match) { f(m) }

// MultiSink fans a match out to every sink in order.
type MultiSink []Sink

func (s MultiSink) Emit(m verify.Match) {
	for _, sk := range s {
		if sk != nil {
			sk.Emit(m)
		}
	}
}

type discard struct{}

func (discard) Emit(verify.Match) {}
