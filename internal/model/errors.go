package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user input the wizard refuses; the state is left unchanged.
	ErrValidation = errors.New("validation error")

	// ErrMissingColumns is returned for a roster without the required columns.
	ErrMissingColumns = fmt.Errorf("%w: your CSV must include: name, current_grade, target_grade", ErrValidation)

	// ErrNoQuestions is returned when setup has no question with a topic.
	ErrNoQuestions = fmt.Errorf("%w: at least one question needs a topic", ErrValidation)

	// ErrIncompleteConfiguration is returned when a step runs before its inputs exist.
	ErrIncompleteConfiguration = errors.New("incomplete configuration")

	// ErrInvalidQuestion is returned for a question that cannot be scored.
	ErrInvalidQuestion = errors.New("invalid question configuration")
)
