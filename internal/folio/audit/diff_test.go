package audit

import (
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/stretchr/testify/require"
)

func TestComputeChanges(t *testing.T) {
	t.Parallel()

	t.Run("only differing keys", func(t *testing.T) {
		cs := ComputeChanges(domain.Fields{"a": 1, "b": 2}, domain.Fields{"a": 1, "b": 3})
		require.NotNil(t, cs)
		require.Equal(t, map[string]domain.Value{"b": {V: float64(2)}}, cs.Before)
		require.Equal(t, map[string]domain.Value{"b": {V: float64(3)}}, cs.After)
	})

	t.Run("identical maps yield nothing", func(t *testing.T) {
		x := domain.Fields{"a": 1, "nested": map[string]any{"tags": []string{"x", "y"}}}
		require.Nil(t, ComputeChanges(x, x))
		require.Nil(t, ComputeChanges(domain.Fields{}, domain.Fields{}))
		require.Nil(t, ComputeChanges(nil, nil))
	})

	t.Run("creation has no before", func(t *testing.T) {
		cs := ComputeChanges(nil, domain.Fields{"a": 1})
		require.NotNil(t, cs)
		require.Nil(t, cs.Before)
		require.Equal(t, map[string]domain.Value{"a": {V: float64(1)}}, cs.After)

		raw, err := json.Marshal(cs)
		require.NoError(t, err)
		require.JSONEq(t, `{"after":{"a":1}}`, string(raw))
	})

	t.Run("deletion has no after", func(t *testing.T) {
		cs := ComputeChanges(domain.Fields{"a": 1}, nil)
		require.NotNil(t, cs)
		require.Nil(t, cs.After)
		require.Contains(t, cs.Before, "a")
	})

	t.Run("removed and added keys are visible on both sides", func(t *testing.T) {
		cs := ComputeChanges(domain.Fields{"gone": "x", "same": true}, domain.Fields{"new": nil, "same": true})
		require.NotNil(t, cs)
		require.Equal(t, domain.Value{V: "x"}, cs.Before["gone"])
		require.Equal(t, domain.Value{Absent: true}, cs.After["gone"])
		require.Equal(t, domain.Value{Absent: true}, cs.Before["new"])
		require.Equal(t, domain.Value{V: nil}, cs.After["new"], "explicit null is not absent")
		require.NotContains(t, cs.Before, "same")

		raw, err := json.Marshal(cs)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"before": {"gone": "x", "new": {"$absent": true}},
			"after":  {"gone": {"$absent": true}, "new": null}
		}`, string(raw))

		var back domain.ChangeSet
		require.NoError(t, json.Unmarshal(raw, &back))
		require.Equal(t, *cs, back)
	})

	t.Run("nested structures compare structurally", func(t *testing.T) {
		before := domain.Fields{"meta": map[string]any{"seo": map[string]any{"title": "a"}}}
		require.Nil(t, ComputeChanges(before, domain.Fields{"meta": map[string]any{"seo": map[string]any{"title": "a"}}}))

		cs := ComputeChanges(before, domain.Fields{"meta": map[string]any{"seo": map[string]any{"title": "b"}}})
		require.NotNil(t, cs)
		require.Contains(t, cs.After, "meta")
	})

	t.Run("numeric kinds are equal after normalisation", func(t *testing.T) {
		require.Nil(t, ComputeChanges(domain.Fields{"n": int64(3)}, domain.Fields{"n": 3.0}))
	})
}
