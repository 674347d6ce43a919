package eventlog

import "github.com/venikman/ui-morn/pkg/domain"

// Hooks are optional callbacks for observing a log.
// They run outside the log's lock and must not block.
type Hooks struct {
	OnAppend      func(domain.Event)
	OnSubscribe   func(ownerID string, cursor int64)
	OnUnsubscribe func(ownerID string)
	OnOverflow    func(ownerID string)
	OnComplete    func(ownerID string)
}

func (h Hooks) appended(ev domain.Event) {
	if h.OnAppend != nil {
		h.OnAppend(ev)
	}
}

func (h Hooks) subscribed(owner string, cursor int64) {
	if h.OnSubscribe != nil {
		h.OnSubscribe(owner, cursor)
	}
}

func (h Hooks) unsubscribed(owner string, n int) {
	if h.OnUnsubscribe == nil {
		return
	}
	for range n {
		h.OnUnsubscribe(owner)
	}
}

func (h Hooks) overflowed(owner string, n int) {
	if h.OnOverflow == nil {
		return
	}
	for range n {
		h.OnOverflow(owner)
	}
}

func (h Hooks) completed(owner string) {
	if h.OnComplete != nil {
		h.OnComplete(owner)
	}
}

// Merge combines several hook sets; each callback invokes every non-nil source in order.
func Merge(hs ...Hooks) Hooks {
	var out Hooks
	for _, h := range hs {
		out.OnAppend = chain1(out.OnAppend, h.OnAppend)
		out.OnSubscribe = chain2(out.OnSubscribe, h.OnSubscribe)
		out.OnUnsubscribe = chain1(out.OnUnsubscribe, h.OnUnsubscribe)
		out.OnOverflow = chain1(out.OnOverflow, h.OnOverflow)
		out.OnComplete = chain1(out.OnComplete, h.OnComplete)
	}
	return out
}

func chain1[T any](a, b func(T)) func(T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(v T) { a(v); b(v) }
}

func chain2[T, U any](a, b func(T, U)) func(T, U) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(v T, u U) { a(v, u); b(v, u) }
}
