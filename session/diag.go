//go:build scribediag

package session

// Snapshot is a point-in-time view of the pipeline internals, available
// only in builds with the scribediag tag.
type Snapshot struct {
	Phase       string
	SessionID   string
	Fragments   int
	Complete    bool
	StreamState string
	Backlog     int
	LastError   string
}

// Diagnostics captures the current pipeline state.
func (lc *Lifecycle) Diagnostics() Snapshot {
	lc.mu.Lock()
	snap := Snapshot{
		Phase: lc.phase.String(),
	}
	if lc.session != nil {
		snap.SessionID = lc.session.ID
	}
	if lc.lastErr != nil {
		snap.LastError = lc.lastErr.Error()
	}
	lc.mu.Unlock()

	snap.Fragments = lc.assembler.Len()
	snap.Complete = lc.assembler.Complete()
	snap.StreamState = string(lc.stream.State())
	if n, err := lc.Backlog(); err == nil {
		snap.Backlog = n
	}
	return snap
}
