package domain

import "fmt"

// GenerationStage identifies one step of the ultrasound-to-portrait
// pipeline. Stages are ordered; progression is strictly forward and only
// ever happens through an explicit CONTINUE intent.
type GenerationStage int

const (
	StageOutline    GenerationStage = 0
	StageFinal      GenerationStage = 1
	StageSkinAdjust GenerationStage = 2
)

// LastStage is the highest stage the pipeline reaches.
const LastStage = StageSkinAdjust

var stageLabels = map[GenerationStage]string{
	StageOutline:    "outline",
	StageFinal:      "final",
	StageSkinAdjust: "skin_adjusted",
}

// Label returns the filename-safe label used for persisted artifacts.
func (s GenerationStage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("stage_%d", int(s))
}

// Valid reports whether the stage is one of the three pipeline stages.
func (s GenerationStage) Valid() bool {
	return s >= StageOutline && s <= StageSkinAdjust
}

// Next returns the following stage. Calling Next on the last stage is a
// programming error guarded by the controller, so it simply saturates.
func (s GenerationStage) Next() GenerationStage {
	if s >= LastStage {
		return LastStage
	}
	return s + 1
}

func (s GenerationStage) String() string {
	return s.Label()
}
