package audit

import (
	"encoding/json"
	"reflect"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
)

// ComputeChanges diffs two field maps. Only keys whose values differ appear,
// on both sides; a key missing on one side is recorded there as absent. A
// nil before (creation) yields only After and a nil after (deletion) only
// Before. Nil means nothing changed.
func ComputeChanges(before, after domain.Fields) *domain.ChangeSet {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		if len(after) == 0 {
			return nil
		}
		return &domain.ChangeSet{After: present(after)}
	case after == nil:
		if len(before) == 0 {
			return nil
		}
		return &domain.ChangeSet{Before: present(before)}
	}

	b := make(map[string]domain.Value)
	a := make(map[string]domain.Value)
	for k, bv := range before {
		av, ok := after[k]
		if !ok {
			b[k] = domain.Value{V: normalize(bv)}
			a[k] = domain.Value{Absent: true}
			continue
		}
		nb, na := normalize(bv), normalize(av)
		if reflect.DeepEqual(nb, na) {
			continue
		}
		b[k] = domain.Value{V: nb}
		a[k] = domain.Value{V: na}
	}
	for k, av := range after {
		if _, ok := before[k]; ok {
			continue
		}
		b[k] = domain.Value{Absent: true}
		a[k] = domain.Value{V: normalize(av)}
	}

	if len(b) == 0 {
		return nil
	}
	return &domain.ChangeSet{Before: b, After: a}
}

func present(f domain.Fields) map[string]domain.Value {
	out := make(map[string]domain.Value, len(f))
	for k, v := range f {
		out[k] = domain.Value{V: normalize(v)}
	}
	return out
}

// normalize round-trips v through JSON so that values compare the way they
// will be stored: int(1) equals float64(1), structs equal their map form.
// Values JSON cannot represent are compared as they are.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
