package training

// TrainingState holds the counters the coordinator advances across epochs.
// Epoch increases by exactly one per coordinator iteration; GlobalStep by the
// number of optimization steps the harness took within that epoch.
type TrainingState struct {
	Epoch      int
	GlobalStep int
}
