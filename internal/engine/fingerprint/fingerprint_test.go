package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/models"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(5 * time.Minute)
	require.NoError(t, err)
	return b
}

func TestBuild_SameBucketCollapses(t *testing.T) {
	b := newBuilder(t)
	base := time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC)

	first := b.Build("J1", "s1", models.EventAssigned, base)
	second := b.Build("J1", "s1", models.EventAssigned, base.Add(200*time.Millisecond))
	third := b.Build("J1", "s1", models.EventAssigned, base.Add(4*time.Minute))

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.True(t, Valid(first.String()))
}

func TestBuild_NextBucketIsFresh(t *testing.T) {
	b := newBuilder(t)
	base := time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC)

	assert.NotEqual(t,
		b.Build("J1", "s1", models.EventAssigned, base),
		b.Build("J1", "s1", models.EventAssigned, base.Add(10*time.Minute)))
}

func TestBuild_FieldsAreDistinguished(t *testing.T) {
	b := newBuilder(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seen := map[Fingerprint]string{}
	add := func(name string, fp Fingerprint) {
		prev, dup := seen[fp]
		require.False(t, dup, "%s collides with %s", name, prev)
		seen[fp] = name
	}

	add("base", b.Build("J1", "s1", models.EventAssigned, at))
	add("job", b.Build("J2", "s1", models.EventAssigned, at))
	add("recipient", b.Build("J1", "s2", models.EventAssigned, at))
	add("type", b.Build("J1", "s1", models.EventRescheduled, at))
	add("shifted boundary", b.Build("J1s", "1", models.EventAssigned, at))
	add("shifted boundary 2", b.Build("J", "1s1", models.EventAssigned, at))
}

func TestBucket_IgnoresZone(t *testing.T) {
	b := newBuilder(t)
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	at := time.Date(2026, 3, 1, 14, 32, 0, 0, loc)

	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), b.Bucket(at))
	assert.Equal(t,
		b.Build("J1", "s1", models.EventAssigned, at),
		b.Build("J1", "s1", models.EventAssigned, at.UTC()))
}

func TestBucket_AlignedOnUnixEpoch(t *testing.T) {
	b, err := NewBuilder(7 * time.Minute)
	require.NoError(t, err)
	w := int64(7 * time.Minute)

	at := time.Date(2026, 3, 1, 9, 3, 0, 0, time.UTC)
	start := b.Bucket(at)
	assert.Zero(t, start.UnixNano()%w)
	assert.False(t, start.After(at))
	assert.True(t, at.Sub(start) < 7*time.Minute)
	assert.Equal(t, start, b.Bucket(start))
	assert.Equal(t, start.Add(7*time.Minute), b.Bucket(start.Add(7*time.Minute)))

	before := time.Unix(-1, 0)
	assert.Equal(t, time.Unix(0, -w).UTC(), b.Bucket(before))
}

func TestNewBuilder_RejectsNonPositiveWindow(t *testing.T) {
	_, err := NewBuilder(0)
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid("abc"))
	assert.False(t, Valid("zz"+string(make([]byte, 62))))
	assert.Equal(t, "0123456789ab", Fingerprint("0123456789abcdef").Short())
}
