package distributed

import (
	"testing"
)

func TestPartitionSingleProcess(t *testing.T) {
	perParticipant, isLeader := Partition(2048, nil)
	if perParticipant != 2048 {
		t.Errorf("expected full batch 2048, got %d", perParticipant)
	}
	if !isLeader {
		t.Error("single-process mode must be leader")
	}
}

func TestPartitionEvenSplit(t *testing.T) {
	ctx := &Context{WorldSize: 4, LocalRank: 1, GlobalRank: 1}
	perParticipant, isLeader := Partition(2048, ctx)
	if perParticipant != 512 {
		t.Errorf("expected 512 per participant, got %d", perParticipant)
	}
	if isLeader {
		t.Error("rank 1 must not be leader")
	}
}

func TestPartitionTruncatesUnevenSplit(t *testing.T) {
	// 2048 / 3 truncates to 682, dropping 2 samples per step. The function is
	// deliberately lossy; rejection happens at config validation instead.
	ctx := &Context{WorldSize: 3, LocalRank: 0, GlobalRank: 0}
	perParticipant, isLeader := Partition(2048, ctx)
	if perParticipant != 682 {
		t.Errorf("expected truncated batch 682, got %d", perParticipant)
	}
	if !isLeader {
		t.Error("rank 0 must be leader")
	}
}

func TestIsLeader(t *testing.T) {
	tests := []struct {
		name   string
		ctx    *Context
		leader bool
	}{
		{"nil context", nil, true},
		{"global rank 0", &Context{WorldSize: 2, GlobalRank: 0}, true},
		{"global rank 1", &Context{WorldSize: 2, GlobalRank: 1}, false},
		{"local rank 0 but global rank 3", &Context{WorldSize: 8, LocalRank: 0, GlobalRank: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLeader(tt.ctx); got != tt.leader {
				t.Errorf("IsLeader(%v) = %v, want %v", tt.ctx, got, tt.leader)
			}
		})
	}
}
