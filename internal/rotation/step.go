package rotation

import (
	"fmt"

	"github.com/savaki/credential-rotators/internal/errors"
)

// Step identifies one phase of the Secrets Manager rotation protocol.
type Step string

const (
	StepCreateSecret Step = "createSecret"
	StepSetSecret    Step = "setSecret"
	StepTestSecret   Step = "testSecret"
	StepFinishSecret Step = "finishSecret"
)

// Steps lists the rotation steps in the order Secrets Manager invokes them.
var Steps = []Step{
	StepCreateSecret,
	StepSetSecret,
	StepTestSecret,
	StepFinishSecret,
}

// Version stage labels managed by Secrets Manager.
const (
	StageCurrent  = "AWSCURRENT"
	StagePending  = "AWSPENDING"
	StagePrevious = "AWSPREVIOUS"
)

// ParseStep converts a raw step label into a Step
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if !step.Valid() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidStep, s)
	}
	return step, nil
}

// Valid reports whether the step is one of the four protocol steps
func (s Step) Valid() bool {
	switch s {
	case StepCreateSecret, StepSetSecret, StepTestSecret, StepFinishSecret:
		return true
	default:
		return false
	}
}

func (s Step) String() string {
	return string(s)
}
