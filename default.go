package endpoint

import (
	"errors"
	"sync/atomic"
)

var defaultResolver atomic.Pointer[Resolver]

// InitDefault constructs the process-wide default resolver, bound to the
// given network. It must be called at most once, before any caller reads
// the default; a second call reports an error rather than replacing the
// resolver other callers may already hold.
func InitDefault(network Network, conf *ResolverConfig) error {
	r, err := NewResolver(network, conf)
	if err != nil {
		return err
	}

	if !defaultResolver.CompareAndSwap(nil, r) {
		return errors.New("default resolver already initialized")
	}

	return nil
}

// Default returns the process-wide default resolver, or nil if InitDefault
// has not been called. It never blocks and is safe to call from any point
// after process start.
func Default() *Resolver {
	return defaultResolver.Load()
}
