package patient

import (
	"strings"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/reconcile"
)

const maxLabelLen = 255

// ConditionInput is one entry of a desired condition collection.
type ConditionInput struct {
	Condition  string `json:"condition"`
	Medication string `json:"medication"`
}

// ConditionPlan is the change set between stored and desired conditions.
type ConditionPlan = reconcile.Plan[*ConditionEntry, ConditionInput]

func conditionKey(c *ConditionEntry) string { return c.Condition }
func inputKey(in ConditionInput) string     { return in.Condition }
func sameMedication(c *ConditionEntry, in ConditionInput) bool {
	return c.Medication == in.Medication
}

// NormalizeConditions trims labels and rejects empty or oversized labels and
// desired collections that name the same condition twice. Labels are
// compared case-sensitively.
func NormalizeConditions(desired []ConditionInput) ([]ConditionInput, error) {
	out := make([]ConditionInput, len(desired))
	for i, in := range desired {
		in.Condition = strings.TrimSpace(in.Condition)
		in.Medication = strings.TrimSpace(in.Medication)
		if in.Condition == "" {
			return nil, apperr.Validationf("condition", "entry %d: condition is required", i)
		}
		if len(in.Condition) > maxLabelLen || len(in.Medication) > maxLabelLen {
			return nil, apperr.Validationf("condition", "entry %d: labels must be at most %d characters", i, maxLabelLen)
		}
		out[i] = in
	}
	if dups := reconcile.DuplicateKeys(out, inputKey); len(dups) > 0 {
		return nil, apperr.Conflictf("reconcile", "condition", "condition %q appears more than once", dups[0])
	}
	return out, nil
}

// DiffConditions keys entries by condition label. A label present on both
// sides is an update when its medication differs. desired must already be
// normalized.
func DiffConditions(current []*ConditionEntry, desired []ConditionInput) ConditionPlan {
	return reconcile.Diff(current, desired, conditionKey, inputKey, sameMedication)
}
