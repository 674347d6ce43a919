package eventlog

// Retention decides how many of the oldest events a log may drop.
type Retention interface {
	// Trim returns how many events to discard from the front, given n retained.
	Trim(n int) int
}

type unbounded struct{}

func (unbounded) Trim(int) int { return 0 }

// Unbounded keeps every event for the lifetime of the log.
func Unbounded() Retention { return unbounded{} }

type keepLast int

func (k keepLast) Trim(n int) int {
	if excess := n - int(k); excess > 0 {
		return excess
	}
	return 0
}

// KeepLast keeps at most the newest n events. Cursors that fall below the
// retained window fail with domain.ErrCursorExpired. n <= 0 means Unbounded.
func KeepLast(n int) Retention {
	if n <= 0 {
		return unbounded{}
	}
	return keepLast(n)
}
