package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// MaxTimerMinutes caps a quiz time limit at one day.
const MaxTimerMinutes = 1440

// Definition is the authoring input for a new quiz.
type Definition struct {
	Title        string     `json:"title"`
	Questions    []Question `json:"questions" validate:"required,min=1,dive"`
	TimerMinutes int        `json:"timerMinutes" validate:"gte=0,lte=1440"`
}

// ValidateDefinition checks the published-quiz invariants. Messages name the
// 1-based question number the way organizers see it.
func ValidateDefinition(def Definition) error {
	if len(def.Questions) == 0 {
		return InvalidInputf("quiz must have at least one question")
	}
	if err := validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return InvalidInputf("%s", describe(verrs[0]))
		}
		return InvalidInputf("invalid quiz: %v", err)
	}
	for i, q := range def.Questions {
		seen := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			key := strings.TrimSpace(opt)
			if _, dup := seen[key]; dup {
				return InvalidInputf("Question %d: options must be distinct", i+1)
			}
			seen[key] = struct{}{}
		}
		if _, ok := seen[strings.TrimSpace(q.Answer)]; !ok {
			return InvalidInputf("Question %d: answer must be one of the options", i+1)
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	// Definition.Questions[2].Options
	var idx int
	if _, err := fmt.Sscanf(ns, "Definition.Questions[%d]", &idx); err == nil {
		switch fe.StructField() {
		case "Text":
			return fmt.Sprintf("Question %d: missing question field", idx+1)
		case "Answer":
			return fmt.Sprintf("Question %d: missing answer field", idx+1)
		case "Options":
			return fmt.Sprintf("Question %d: must have at least 2 options", idx+1)
		}
		return fmt.Sprintf("Question %d: invalid %s", idx+1, strings.ToLower(fe.Field()))
	}
	if fe.StructField() == "TimerMinutes" {
		return fmt.Sprintf("timer minutes must be between 0 and %d", MaxTimerMinutes)
	}
	return fmt.Sprintf("invalid %s", strings.ToLower(fe.Field()))
}
