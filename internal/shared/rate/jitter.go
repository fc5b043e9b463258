package rate

import (
	"context"
	"go.uber.org/ratelimit"
)

// Jitter emits at most perSec signals per second on Chan until ctx is done.
// A small buffer absorbs short consumer stalls without losing the pace.
type Jitter struct {
	ch chan struct{}
	l  ratelimit.Limiter
}

func NewJitter(ctx context.Context, perSec int) *Jitter {
	if perSec <= 0 {
		perSec = 1
	}
	burst := perSec / 10
	if burst < 1 {
		burst = 1
	}
	j := &Jitter{
		ch: make(chan struct{}, burst),
		l:  ratelimit.New(perSec, ratelimit.WithoutSlack),
	}
	go j.provider(ctx)
	return j
}

func (j *Jitter) provider(ctx context.Context) {
	defer close(j.ch)
	for {
		j.l.Take()
		select {
		case <-ctx.Done():
			return
		case j.ch <- struct{}{}:
		}
	}
}

// Chan is closed once ctx is done.
func (j *Jitter) Chan() <-chan struct{} {
	return j.ch
}
