package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusAnalyzing  JobStatus = "analyzing"
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether no transition can leave the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// allowedTransitions lists the forward edges of the job state machine.
// Any active status may additionally move to failed or canceled.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusAnalyzing},
	JobStatusAnalyzing:  {JobStatusGenerating},
	JobStatusGenerating: {JobStatusCompleted},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed || to == JobStatusCanceled {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Progress checkpoints
const (
	ProgressAnalyzing        = 5
	ProgressAnalysisComplete = 15
	ProgressPackaging        = 90
	ProgressComplete         = 100
)

// GenerationProgress apportions the generation stage linearly between the
// analysis-complete and packaging checkpoints.
func GenerationProgress(done, total int) int {
	if total <= 0 {
		return ProgressPackaging
	}
	if done > total {
		done = total
	}
	span := ProgressPackaging - ProgressAnalysisComplete
	return ProgressAnalysisComplete + span*done/total
}
