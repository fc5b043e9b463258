// Package diag is the operator-visible channel for invariant violations (unlock underflow,
// failed abort hooks). Violations are logged and counted; they never stop the caller.
package diag

import (
	"github.com/rs/zerolog"
	"io"
	"os"
	"sync/atomic"
	"time"
)

type Reporter struct {
	log        zerolog.Logger
	violations atomic.Int64
}

// New writes JSON lines to w (stderr when nil).
func New(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	return &Reporter{
		log: zerolog.New(w).With().Timestamp().Str("component", "ashtiers").Logger(),
	}
}

// NewNop counts violations without writing them anywhere.
func NewNop() *Reporter {
	return &Reporter{log: zerolog.Nop()}
}

// Report implements tier.Reporter.
func (r *Reporter) Report(tier, key string, err error) {
	r.violations.Add(1)
	r.log.Error().
		Err(err).
		Str("tier", tier).
		Str("key", key).
		Msg("invariant violation")
}

// Hook reports a failed external abort hook.
func (r *Reporter) Hook(name string, elapsed time.Duration, err error) {
	r.violations.Add(1)
	r.log.Warn().
		Err(err).
		Str("hook", name).
		Str("elapsed", elapsed.String()).
		Msg("abort hook failed")
}

func (r *Reporter) Violations() int64 { return r.violations.Load() }
