package distributed

import "fmt"

// Syncer is the collective synchronization surface the harness consumes after
// each backward pass. The real implementation lives in the distributed-parallel
// wrapper; the coordinator never calls it directly.
type Syncer interface {
	// Sync blocks until every participant has contributed its gradients.
	Sync() error
}

// NopSyncer is the single-process implementation: there is nobody to wait for.
type NopSyncer struct{}

func (NopSyncer) Sync() error { return nil }

// CoordinationError reports a participant failing or hanging during a
// collective operation. It is not locally recoverable; the whole run must
// terminate.
type CoordinationError struct {
	Rank  int
	Cause error
}

func (e *CoordinationError) Error() string {
	return fmt.Sprintf("distributed coordination failure on rank %d: %v", e.Rank, e.Cause)
}

func (e *CoordinationError) Unwrap() error { return e.Cause }
