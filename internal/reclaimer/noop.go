package reclaimer

import (
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"time"
)

// NoOpReclaimer is used when background reclamation is disabled.
// Quotas are then enforced only by explicit shrink calls.
type NoOpReclaimer struct{}

// Submit drops the request and returns nil immediately.
func (NoOpReclaimer) Submit(accountant.ShrinkRequest, time.Duration) error {
	return nil
}

// Metrics always returns zero values.
func (NoOpReclaimer) Metrics() (scans, hits, freedItems, freedBytes int64) {
	return 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOpReclaimer) Close() error {
	return nil
}
