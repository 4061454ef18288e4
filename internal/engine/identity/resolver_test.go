package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/common/errors"
)

func newTestResolver(t *testing.T, patterns map[string]string) *Resolver {
	t.Helper()
	r, err := NewResolver(Options{
		Precedence: []string{"account", "staff", "assignment"},
		Patterns:   patterns,
	})
	require.NoError(t, err)
	return r
}

func TestResolve_PrecedenceWins(t *testing.T) {
	r := newTestResolver(t, nil)

	got, err := r.Resolve([]string{"assignment:a7", "staff:s1", "account:u1"})
	require.NoError(t, err)
	assert.Equal(t, "account:u1", got.RecipientID)
	assert.Equal(t, "account", got.Kind)
	assert.Equal(t, "account:u1", got.Source)

	got, err = r.Resolve([]string{"assignment:a7", "staff:s1"})
	require.NoError(t, err)
	assert.Equal(t, "staff:s1", got.RecipientID)
}

func TestResolve_PermutationInvariant(t *testing.T) {
	r := newTestResolver(t, map[string]string{"staff": `^s\d+$`})
	keys := []string{"u1", "s1", "staff:s0", "  ", "assignment:a7", "s2"}

	want, err := r.Resolve(keys)
	require.NoError(t, err)
	assert.Equal(t, "staff:s0", want.RecipientID)

	permute(keys, 0, func(p []string) {
		got, err := r.Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, want, got, "keys %v", p)
	})
}

func TestResolve_UnqualifiedKeysAreStable(t *testing.T) {
	r := newTestResolver(t, nil)

	a, err := r.Resolve([]string{"u1", "s1"})
	require.NoError(t, err)
	b, err := r.Resolve([]string{"s1", "u1"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "s1", a.RecipientID)
	assert.Equal(t, Unclassified, a.Kind)
}

func TestResolve_PatternClassifiesUnqualifiedKeys(t *testing.T) {
	r := newTestResolver(t, map[string]string{
		"account": `^[0-9a-f]{8}-[0-9a-f]{4}-`,
		"staff":   `^STF-`,
	})

	got, err := r.Resolve([]string{"STF-0042", "legacy-17", "1b4e28ba-2fa1-11d2-883f-0016d3cca427"})
	require.NoError(t, err)
	assert.Equal(t, "account:1b4e28ba-2fa1-11d2-883f-0016d3cca427", got.RecipientID)

	got, err = r.Resolve([]string{"legacy-17", "STF-0042"})
	require.NoError(t, err)
	assert.Equal(t, "staff:STF-0042", got.RecipientID)
}

func TestResolve_TrimsWhitespaceAndCase(t *testing.T) {
	r := newTestResolver(t, nil)

	got, err := r.Resolve([]string{"  Staff: s1  "})
	require.NoError(t, err)
	assert.Equal(t, "staff:s1", got.RecipientID)
}

func TestResolve_UnknownPrefixIsAValue(t *testing.T) {
	r := newTestResolver(t, nil)

	got, err := r.Resolve([]string{"firebase:abc"})
	require.NoError(t, err)
	assert.Equal(t, "firebase:abc", got.RecipientID)
	assert.Equal(t, Unclassified, got.Kind)
}

func TestResolve_InvalidRecipient(t *testing.T) {
	r := newTestResolver(t, nil)

	for name, keys := range map[string][]string{
		"nil":          nil,
		"empty":        {},
		"blank":        {"", "   "},
		"empty values": {"staff:", "account: "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(keys)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidRecipient, errors.CodeOf(err))
		})
	}
}

func TestNewResolver_RejectsBadOptions(t *testing.T) {
	_, err := NewResolver(Options{})
	assert.Error(t, err)

	_, err = NewResolver(Options{Precedence: []string{"staff", "staff"}})
	assert.Error(t, err)

	_, err = NewResolver(Options{Precedence: []string{"staff"}, Patterns: map[string]string{"staff": "("}})
	assert.Error(t, err)
}

func permute(a []string, k int, visit func([]string)) {
	if k == len(a) {
		p := make([]string, len(a))
		copy(p, a)
		visit(p)
		return
	}
	for i := k; i < len(a); i++ {
		a[k], a[i] = a[i], a[k]
		permute(a, k+1, visit)
		a[k], a[i] = a[i], a[k]
	}
}
