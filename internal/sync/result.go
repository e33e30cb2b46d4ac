package sync

import "fmt"

// Result summarises one three-phase pass. Counts cover both directions and
// are best-effort under partial failure; callers get this summary, never
// per-record detail.
type Result struct {
	// Success is false only for fatal conditions: the remote set could not
	// be fetched at all, or the local store failed. Per-record remote
	// failures leave Success true and show up in Failed.
	Success bool
	Message string

	Created int
	Updated int
	Deleted int
	Failed  int
}

// summarize fills Message from the counts and the first per-record error.
func (r *Result) summarize(firstErr error) {
	switch {
	case r.Failed == 0:
		r.Message = "synchronization complete"
	case firstErr != nil:
		r.Message = fmt.Sprintf("synchronization completed with %d failed records (first: %v)", r.Failed, firstErr)
	default:
		r.Message = fmt.Sprintf("synchronization completed with %d failed records", r.Failed)
	}
}
