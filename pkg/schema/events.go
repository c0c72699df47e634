package schema

// Pipeline stage names, in execution order. The requirements and
// reference_analysis stages have no data dependency and run concurrently;
// the rest are sequential.
const (
	StageRequirements      = "requirements"
	StageReferenceAnalysis = "reference_analysis"
	StagePlanning          = "planning"
	StageComposition       = "composition"
	StageImageGeneration   = "image_generation"
	StageVerification      = "verification"
)

// StageOrder is the pipeline order used for progress percentages and the
// stage-outcome log.
var StageOrder = []string{
	StageRequirements,
	StageReferenceAnalysis,
	StagePlanning,
	StageComposition,
	StageImageGeneration,
	StageVerification,
}

// StageOutcome describes how one stage concluded.
type StageOutcome string

const (
	OutcomeSuccess  StageOutcome = "success"
	OutcomeFallback StageOutcome = "fallback"
	OutcomeSkipped  StageOutcome = "skipped"
	OutcomeError    StageOutcome = "error"
)

// Event type constants for the run event log.
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunDegraded   = "run_degraded"
	EventRunFailed     = "run_failed"
	EventRunCancelled  = "run_cancelled"
	EventStageStarted  = "stage_started"
	EventStageRetrying = "stage_retrying"
	EventStageFallback = "stage_fallback"
	EventStageDone     = "stage_done"
	EventSceneApplied  = "scene_applied"
	EventStylesSynced  = "styles_synced"
)

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)
