package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

func TestDefaultCatalogueIsPriorityOrdered(t *testing.T) {
	c := Default()
	rules := c.Rules()
	require.NotEmpty(t, rules)

	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqualf(t, rules[i-1].Priority, rules[i].Priority,
			"rule %d (%s, priority %d) must not be tried before rule %d (%s, priority %d)",
			i-1, rules[i-1].ID, rules[i-1].Priority, i, rules[i].ID, rules[i].Priority)
	}
}

func TestDefaultCatalogueHasNormativeIDs(t *testing.T) {
	c := Default()
	ids := map[string]domain.Rule{}
	for _, r := range c.Rules() {
		ids[r.ID] = r
	}

	for _, id := range []string{
		"fatal_generic", "out_of_memory", "uncaught_exception",
		"bundler_error_with_location", "module_not_found", "port_in_use",
		"client_error_json", "lint_error", "exception_generic",
	} {
		_, ok := ids[id]
		assert.Truef(t, ok, "expected rule %q in default catalogue", id)
	}
}

func TestDefaultCatalogueNoDuplicateIDs(t *testing.T) {
	c := Default()
	seen := map[string]bool{}
	for _, r := range c.Rules() {
		assert.Falsef(t, seen[r.ID], "duplicate rule id %q", r.ID)
		seen[r.ID] = true
	}
}

func TestNewSortsStably(t *testing.T) {
	c := New([]domain.Rule{
		{ID: "a", Priority: 10},
		{ID: "b", Priority: 20},
		{ID: "c", Priority: 20},
		{ID: "d", Priority: 5},
	})
	rules := c.Rules()
	require.Len(t, rules, 4)
	assert.Equal(t, []string{"b", "c", "a", "d"}, []string{rules[0].ID, rules[1].ID, rules[2].ID, rules[3].ID})
}
