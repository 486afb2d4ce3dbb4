// Package distributed describes a participant in a multi-process training run
// and the batch partitioning and leadership rules that follow from it.
//
// One operating system process hosts one participant. Gradient synchronization
// between participants happens inside the collective wrapper consumed by the
// harness; this package only carries the topology.
package distributed

import "fmt"

// Context describes one participant of a multi-process run. A nil *Context
// means single-process mode.
type Context struct {
	WorldSize  int
	LocalRank  int
	GlobalRank int
}

func (c *Context) String() string {
	if c == nil {
		return "single-process"
	}
	return fmt.Sprintf("rank %d/%d (local %d)", c.GlobalRank, c.WorldSize, c.LocalRank)
}

// IsLeader reports whether this participant performs singleton side effects:
// creating output directories, writing metric streams, persisting checkpoints.
// Absent a distributed context the sole process is the leader.
func IsLeader(c *Context) bool {
	return c == nil || c.GlobalRank == 0
}

// Partition splits a requested total batch size across the participants of a
// run and reports whether the caller is the leader.
//
// The split is integer division: a total that does not divide evenly by the
// world size silently drops the remainder, shrinking the effective total batch
// size. Callers are expected to choose divisible sizes; startup validation
// rejects uneven ones before a run begins.
func Partition(totalBatchSize int, c *Context) (perParticipant int, isLeader bool) {
	if c == nil {
		return totalBatchSize, true
	}
	return totalBatchSize / c.WorldSize, c.GlobalRank == 0
}
