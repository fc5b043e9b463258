package lifetimer

// NoOpLifetimer is a no-op implementation of Lifetimer.
// Entries then leave their tiers only through reclamation.
type NoOpLifetimer struct{}

// Metrics always returns zero values.
func (NoOpLifetimer) Metrics() (scans, hits, expiredItems, expiredBytes int64) {
	return 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOpLifetimer) Close() error {
	return nil
}
