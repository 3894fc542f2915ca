package pipeline

// Stage is the single source of truth for what the user may currently do.
// Every other pipeline entity is only meaningful relative to the stage.
type Stage int

const (
	// StageIdle: no upload accepted yet.
	StageIdle Stage = iota
	// StageCropping: a source image is loaded and awaiting crop confirmation.
	StageCropping
	// StageUploaded: the canonical cropped image exists, ready to submit.
	StageUploaded
	// StageProcessing: exactly one backend call is in flight.
	StageProcessing
	// StageCompleted: a processed result is available.
	StageCompleted
	// StageFailed: the last submission failed; resubmission is allowed.
	StageFailed
)

var stageNames = map[Stage]string{
	StageIdle:       "idle",
	StageCropping:   "cropping",
	StageUploaded:   "uploaded",
	StageProcessing: "processing",
	StageCompleted:  "completed",
	StageFailed:     "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText makes Stage render as its name in JSON snapshots.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
