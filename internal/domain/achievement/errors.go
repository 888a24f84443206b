package achievement

import "errors"

var (
	// ErrUnknownAchievement is returned when an id is absent from the registry.
	ErrUnknownAchievement = errors.New("unknown achievement")
	// ErrDuplicateRule is returned when an id is registered twice.
	ErrDuplicateRule = errors.New("achievement already registered")
	// ErrInvalidDefinition is returned for definitions without an id.
	ErrInvalidDefinition = errors.New("invalid achievement definition")
	// ErrInvalidProgress is returned for negative progress values.
	ErrInvalidProgress = errors.New("invalid progress")
	// ErrEvaluationLimit is returned when reward cascades do not settle
	// within the configured number of passes.
	ErrEvaluationLimit = errors.New("achievement evaluation did not settle")
)
