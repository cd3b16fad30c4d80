// internal/health/tracker.go
package health

// Tracker folds per-transaction outcomes into a two-state healthy/faulted
// view and reports only the edges, so callers log an unresponsive device
// once per episode instead of once per failed transaction.
//
// Not safe for concurrent use. The transaction loop is the only caller.
type Tracker struct {
	faulted  bool
	failures int
}

// Fail records a transaction that exhausted its retries. It reports true
// exactly once per episode, on the healthy-to-faulted edge.
func (t *Tracker) Fail() bool {
	t.failures++
	if t.faulted {
		return false
	}
	t.faulted = true
	return true
}

// Recover records a completed transaction. On the faulted-to-healthy edge it
// returns the number of failures the ending episode absorbed and true;
// otherwise 0 and false.
func (t *Tracker) Recover() (int, bool) {
	if !t.faulted {
		return 0, false
	}
	n := t.failures
	t.faulted = false
	t.failures = 0
	return n, true
}

// Faulted reports whether an episode is in progress.
func (t *Tracker) Faulted() bool {
	return t.faulted
}
