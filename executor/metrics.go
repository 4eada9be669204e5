package executor

import (
	"time"

	"github.com/IvanBrykalov/imgcache/pipeline"
)

// Outcome classifies a finished request.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Metrics observes finished requests. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// Observe records one request; from is meaningful only on Success.
	Observe(outcome Outcome, from pipeline.DataFrom, d time.Duration)
	// Coalesced records a request that joined a run already in flight.
	Coalesced()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Observe(Outcome, pipeline.DataFrom, time.Duration) {}
func (NoopMetrics) Coalesced()                                        {}
