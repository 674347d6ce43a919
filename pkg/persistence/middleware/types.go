package middleware

import "github.com/venikman/ui-morn/pkg/ports"

// Middleware allows wrapping a MirrorStore to add behavior.
type Middleware func(ports.MirrorStore) ports.MirrorStore

// Chain applies mws so that the first one is outermost.
func Chain(store ports.MirrorStore, mws ...Middleware) ports.MirrorStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
