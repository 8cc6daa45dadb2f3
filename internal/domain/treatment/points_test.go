package treatment

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/therapy/clinic/internal/platform/apperr"
)

func point(loc string, x, y float64, reaction, quantity int) *MeasurementPoint {
	return &MeasurementPoint{ID: uuid.New(), Location: loc, X: x, Y: y, Reaction: reaction, Quantity: quantity}
}

func TestDiffPoints_AddOnly(t *testing.T) {
	a := point("A", 1, 1, 2, 5)
	plan := DiffPoints([]*MeasurementPoint{a}, []PointInput{
		{Location: "A", X: 1, Y: 1, Reaction: 2, Quantity: 5},
		{Location: "B", X: 2, Y: 2, Reaction: 3, Quantity: 6},
	})

	if len(plan.Additions) != 1 || plan.Additions[0].Location != "B" {
		t.Errorf("expected only B to be added, got %+v", plan.Additions)
	}
	if len(plan.Deletions) != 0 || len(plan.Updates) != 0 {
		t.Errorf("expected no deletes or updates, got %s", plan.Summary())
	}
	if len(plan.Unchanged) != 1 || plan.Unchanged[0] != a {
		t.Error("existing point should be kept as-is")
	}
}

func TestDiffPoints_ChangedFieldIsDeleteAndAdd(t *testing.T) {
	plan := DiffPoints([]*MeasurementPoint{point("A", 1, 1, 2, 5)}, []PointInput{{Location: "A", X: 1, Y: 1, Reaction: 3, Quantity: 5}})
	if len(plan.Deletions) != 1 || len(plan.Additions) != 1 || len(plan.Updates) != 0 {
		t.Errorf("expected one delete and one add, got %s", plan.Summary())
	}
}

func TestDiffPoints_StoredDuplicatesCollapse(t *testing.T) {
	first := point("A", 1, 1, 2, 5)
	second := point("A", 1, 1, 2, 5)
	plan := DiffPoints([]*MeasurementPoint{first, second}, []PointInput{{Location: "A", X: 1, Y: 1, Reaction: 2, Quantity: 5}})

	if len(plan.Unchanged) != 1 || plan.Unchanged[0] != first {
		t.Errorf("expected the first stored row to be kept, got %v", plan.Unchanged)
	}
	if len(plan.Deletions) != 1 || plan.Deletions[0] != second {
		t.Errorf("expected the extra stored row to be deleted, got %v", plan.Deletions)
	}
}

func TestNormalizePoints(t *testing.T) {
	out, err := NormalizePoints([]PointInput{{Location: " neck ", X: math.Copysign(0, -1), Y: 2, Reaction: 1, Quantity: 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Location != "neck" {
		t.Errorf("expected trimmed location, got %q", out[0].Location)
	}
	if math.Signbit(out[0].X) {
		t.Error("negative zero should be normalized")
	}
}

func TestNormalizePoints_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input []PointInput
		kind  apperr.Kind
	}{
		{"empty location", []PointInput{{Location: " "}}, apperr.Validation},
		{"nan", []PointInput{{Location: "A", X: math.NaN()}}, apperr.Validation},
		{"inf", []PointInput{{Location: "A", Y: math.Inf(1)}}, apperr.Validation},
		{"negative quantity", []PointInput{{Location: "A", Quantity: -1}}, apperr.Validation},
		{"duplicate tuple", []PointInput{{Location: "A", X: 1}, {Location: "A", X: 1}}, apperr.Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NormalizePoints(tt.input); !errors.Is(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}
