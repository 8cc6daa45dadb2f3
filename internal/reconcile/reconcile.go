// Package reconcile computes and applies the changes that move a stored child
// collection to a caller-supplied desired state.
//
// Diff is pure and total. Apply runs the resulting plan through caller
// supplied operations in the order deletes, updates, inserts, so a delete and
// an insert sharing a natural key never coexist in the store.
package reconcile

import (
	"context"
	"fmt"
)

// Update pairs a stored child with the desired value replacing its fields.
type Update[C, D any] struct {
	Current C
	Desired D
}

// Plan is the outcome of Diff. The four slices are disjoint: every current
// element appears in exactly one of Updates, Deletions or Unchanged, and
// every desired element in exactly one of Additions, Updates or Unchanged.
type Plan[C, D any] struct {
	Additions []D
	Updates   []Update[C, D]
	Deletions []C
	Unchanged []C
}

// Empty reports whether applying the plan would write nothing.
func (p Plan[C, D]) Empty() bool {
	return len(p.Additions) == 0 && len(p.Updates) == 0 && len(p.Deletions) == 0
}

// Summary returns the plan's change counts.
func (p Plan[C, D]) Summary() Summary {
	return Summary{
		Added:     len(p.Additions),
		Updated:   len(p.Updates),
		Deleted:   len(p.Deletions),
		Unchanged: len(p.Unchanged),
	}
}

// Summary counts the changes of one reconciliation.
type Summary struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// String formats the counts for log lines.
func (s Summary) String() string {
	return fmt.Sprintf("added=%d updated=%d deleted=%d unchanged=%d", s.Added, s.Updated, s.Deleted, s.Unchanged)
}

// Diff matches current against desired by logical key.
//
// Keys on the current side may repeat (rows written before the key was
// enforced); each desired element claims at most one stored element with its
// key, first come first served, and unclaimed stored elements are deleted.
// A claimed pair lands in Unchanged when same reports true, else in Updates.
// Callers reject duplicate desired keys with DuplicateKeys beforehand.
func Diff[K comparable, C, D any](
	current []C,
	desired []D,
	keyC func(C) K,
	keyD func(D) K,
	same func(C, D) bool,
) Plan[C, D] {
	byKey := make(map[K][]int, len(current))
	for i, c := range current {
		k := keyC(c)
		byKey[k] = append(byKey[k], i)
	}

	claimed := make([]bool, len(current))
	var plan Plan[C, D]
	for _, d := range desired {
		k := keyD(d)
		queue := byKey[k]
		if len(queue) == 0 {
			plan.Additions = append(plan.Additions, d)
			continue
		}
		i := queue[0]
		byKey[k] = queue[1:]
		claimed[i] = true
		if same(current[i], d) {
			plan.Unchanged = append(plan.Unchanged, current[i])
		} else {
			plan.Updates = append(plan.Updates, Update[C, D]{Current: current[i], Desired: d})
		}
	}

	for i, c := range current {
		if !claimed[i] {
			plan.Deletions = append(plan.Deletions, c)
		}
	}
	return plan
}

// DuplicateKeys returns each key that occurs more than once in items, in
// order of its second occurrence.
func DuplicateKeys[K comparable, T any](items []T, key func(T) K) []K {
	seen := make(map[K]int, len(items))
	var dups []K
	for _, it := range items {
		k := key(it)
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}

// Ops writes one change to the store. Update may be nil for collections
// whose plans never contain updates.
type Ops[C, D any] struct {
	Delete func(ctx context.Context, c C) error
	Update func(ctx context.Context, c C, d D) error
	Insert func(ctx context.Context, d D) error
}

// Apply writes plan through ops: deletes, then updates, then inserts. It
// stops at the first error; the caller's transaction is expected to discard
// whatever was already written.
func Apply[C, D any](ctx context.Context, plan Plan[C, D], ops Ops[C, D]) (Summary, error) {
	for _, c := range plan.Deletions {
		if err := ops.Delete(ctx, c); err != nil {
			return Summary{}, err
		}
	}
	if len(plan.Updates) > 0 && ops.Update == nil {
		return Summary{}, fmt.Errorf("reconcile: plan has %d updates but no update operation", len(plan.Updates))
	}
	for _, u := range plan.Updates {
		if err := ops.Update(ctx, u.Current, u.Desired); err != nil {
			return Summary{}, err
		}
	}
	for _, d := range plan.Additions {
		if err := ops.Insert(ctx, d); err != nil {
			return Summary{}, err
		}
	}
	return plan.Summary(), nil
}
