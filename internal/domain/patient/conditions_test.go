package patient

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/therapy/clinic/internal/platform/apperr"
)

func entry(condition, medication string) *ConditionEntry {
	return &ConditionEntry{ID: uuid.New(), Condition: condition, Medication: medication}
}

func TestDiffConditions_UpdateAndAdd(t *testing.T) {
	flu := entry("flu", "paracetamol")
	plan := DiffConditions([]*ConditionEntry{flu}, []ConditionInput{
		{Condition: "flu", Medication: "ibuprofen"},
		{Condition: "asthma", Medication: "inhaler"},
	})

	if len(plan.Deletions) != 0 {
		t.Errorf("expected no deletions, got %d", len(plan.Deletions))
	}
	if len(plan.Updates) != 1 || plan.Updates[0].Current != flu || plan.Updates[0].Desired.Medication != "ibuprofen" {
		t.Errorf("expected flu -> ibuprofen update, got %+v", plan.Updates)
	}
	if len(plan.Additions) != 1 || plan.Additions[0].Condition != "asthma" {
		t.Errorf("expected asthma addition, got %+v", plan.Additions)
	}
}

func TestDiffConditions_EmptyDesiredDeletesAll(t *testing.T) {
	current := []*ConditionEntry{entry("flu", "x"), entry("asthma", "y")}
	plan := DiffConditions(current, []ConditionInput{})
	if len(plan.Deletions) != 2 || len(plan.Additions) != 0 || len(plan.Updates) != 0 {
		t.Errorf("expected two deletions only, got %s", plan.Summary())
	}
}

func TestDiffConditions_SameMedicationUnchanged(t *testing.T) {
	plan := DiffConditions([]*ConditionEntry{entry("flu", "x")}, []ConditionInput{{Condition: "flu", Medication: "x"}})
	if !plan.Empty() || len(plan.Unchanged) != 1 {
		t.Errorf("expected one unchanged entry, got %s", plan.Summary())
	}
}

func TestDiffConditions_CaseSensitive(t *testing.T) {
	plan := DiffConditions([]*ConditionEntry{entry("flu", "x")}, []ConditionInput{{Condition: "Flu", Medication: "x"}})
	if len(plan.Additions) != 1 || len(plan.Deletions) != 1 {
		t.Errorf("labels differing in case are distinct, got %s", plan.Summary())
	}
}

func TestNormalizeConditions(t *testing.T) {
	out, err := NormalizeConditions([]ConditionInput{{Condition: "  flu ", Medication: " rest "}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Condition != "flu" || out[0].Medication != "rest" {
		t.Errorf("expected trimmed labels, got %+v", out[0])
	}

	out, err = NormalizeConditions(nil)
	if err != nil || len(out) != 0 {
		t.Errorf("nil input should normalize to empty, got %v %v", out, err)
	}
}

func TestNormalizeConditions_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input []ConditionInput
		kind  apperr.Kind
	}{
		{"empty label", []ConditionInput{{Condition: "   "}}, apperr.Validation},
		{"duplicate label", []ConditionInput{{Condition: "flu", Medication: "a"}, {Condition: "flu", Medication: "b"}}, apperr.Conflict},
		{"duplicate after trim", []ConditionInput{{Condition: "flu"}, {Condition: " flu"}}, apperr.Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeConditions(tt.input)
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}
