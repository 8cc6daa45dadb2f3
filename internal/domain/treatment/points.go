package treatment

import (
	"math"
	"strings"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/reconcile"
)

// PointInput is one entry of a desired point collection. All five fields
// together form the point's identity: two points that agree on every field
// cannot be told apart.
type PointInput struct {
	Location string  `json:"location"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Reaction int     `json:"reaction"`
	Quantity int     `json:"quantity"`
}

// PointPlan is the change set between stored and desired points. Its
// Updates are always empty.
type PointPlan = reconcile.Plan[*MeasurementPoint, PointInput]

func storedKey(p *MeasurementPoint) PointInput {
	return PointInput{Location: p.Location, X: p.X, Y: p.Y, Reaction: p.Reaction, Quantity: p.Quantity}
}

func desiredKey(in PointInput) PointInput { return in }

func sameTuple(*MeasurementPoint, PointInput) bool { return true }

// NormalizePoints trims locations and rejects malformed entries and desired
// collections that contain the same tuple twice.
func NormalizePoints(desired []PointInput) ([]PointInput, error) {
	out := make([]PointInput, len(desired))
	for i, in := range desired {
		in.Location = strings.TrimSpace(in.Location)
		switch {
		case in.Location == "":
			return nil, apperr.Validationf("point", "entry %d: location is required", i)
		case len(in.Location) > maxTextLen:
			return nil, apperr.Validationf("point", "entry %d: location must be at most %d characters", i, maxTextLen)
		case math.IsNaN(in.X) || math.IsInf(in.X, 0) || math.IsNaN(in.Y) || math.IsInf(in.Y, 0):
			return nil, apperr.Validationf("point", "entry %d: coordinates must be finite", i)
		case in.Quantity < 0:
			return nil, apperr.Validationf("point", "entry %d: quantity must not be negative", i)
		}
		// -0 and 0 are the same coordinate.
		if in.X == 0 {
			in.X = 0
		}
		if in.Y == 0 {
			in.Y = 0
		}
		out[i] = in
	}
	if dups := reconcile.DuplicateKeys(out, desiredKey); len(dups) > 0 {
		d := dups[0]
		return nil, apperr.Conflictf("reconcile", "point", "point (%s, %g, %g, %d, %d) appears more than once",
			d.Location, d.X, d.Y, d.Reaction, d.Quantity)
	}
	return out, nil
}

// DiffPoints matches points by their full tuple. Stored points whose tuple
// is still desired are left untouched. When older data holds the same tuple
// more than once, one stored row survives per desired occurrence and the
// rest are deleted.
func DiffPoints(current []*MeasurementPoint, desired []PointInput) PointPlan {
	return reconcile.Diff(current, desired, storedKey, desiredKey, sameTuple)
}
