package tier

import "errors"

var (
	// ErrDuplicateKey is returned by Create when the key is already present.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrEntryLocked is returned when evicting or replacing a pinned entry.
	ErrEntryLocked = errors.New("entry is locked")
	// ErrUnlockUnderflow signals an unlock without a matching lock. It is a defect
	// in the caller: it is reported to the diagnostic channel and otherwise ignored.
	ErrUnlockUnderflow = errors.New("unlock underflow")
	// ErrNotLoading is returned by operations valid only for Loading entries.
	ErrNotLoading = errors.New("entry is not loading")
	// ErrEntryDestroyed is returned when the handle no longer belongs to the tier.
	ErrEntryDestroyed = errors.New("entry is destroyed")
)
