package pipeline

// Stage is a state of the processing state machine
type Stage int

const (
	StageValidate Stage = iota
	StageLocateFace
	StageValidateResolution
	StageCrop
	StageRemoveBackground
	StageExactCrop
	StageApplyColor
	StageBuildPreviews
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageValidate:           "validate",
	StageLocateFace:         "locate_face",
	StageValidateResolution: "validate_resolution",
	StageCrop:               "crop",
	StageRemoveBackground:   "remove_background",
	StageExactCrop:          "exact_crop",
	StageApplyColor:         "apply_color",
	StageBuildPreviews:      "build_previews",
	StageDone:               "done",
	StageFailed:             "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// MarshalText encodes the stage by name
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further stage follows s
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}
