package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Invalid(t *testing.T) {
	cases := []string{"", ".", "a..b", ".a", "a."}
	for _, raw := range cases {
		_, err := Compile(raw)
		assert.Error(t, err, "pattern %q should not compile", raw)
	}
}

func TestPattern_Exact(t *testing.T) {
	p := MustCompile("order.created")

	assert.True(t, p.Matches("order.created"))
	assert.False(t, p.Matches("order.updated"))
	assert.False(t, p.Matches("order"))
	assert.False(t, p.Matches("order.created.v2"))
	assert.False(t, p.IsWildcard())
}

func TestPattern_FullWildcard(t *testing.T) {
	p := MustCompile("*")

	assert.True(t, p.Matches("order"))
	assert.True(t, p.Matches("order.created"))
	assert.True(t, p.Matches("a.b.c.d"))
	assert.False(t, p.Matches(""))
}

func TestPattern_TrailingGlob(t *testing.T) {
	p := MustCompile("device.*")

	// One trailing segment.
	assert.True(t, p.Matches("device.created"))
	// A trailing * matches one-or-more segments.
	assert.True(t, p.Matches("device.sensor.read"))

	// Fixed prefix segments must match whole segments.
	assert.False(t, p.Matches("deviceX.created"))
	assert.False(t, p.Matches("other.device.created"))
	// At least one segment must follow the prefix.
	assert.False(t, p.Matches("device"))
}

func TestPattern_MiddleWildcard(t *testing.T) {
	p := MustCompile("device.*.read")

	assert.True(t, p.Matches("device.sensor.read"))
	// A non-final * matches exactly one segment.
	assert.False(t, p.Matches("device.a.b.read"))
	assert.False(t, p.Matches("device.read"))
}

func TestPattern_MultiWildcard(t *testing.T) {
	p := MustCompile("device.**")

	// ** matches zero or more segments.
	assert.True(t, p.Matches("device"))
	assert.True(t, p.Matches("device.created"))
	assert.True(t, p.Matches("device.sensor.read"))
	assert.False(t, p.Matches("gateway.device"))

	mid := MustCompile("a.**.z")
	assert.True(t, mid.Matches("a.z"))
	assert.True(t, mid.Matches("a.b.z"))
	assert.True(t, mid.Matches("a.b.c.z"))
	assert.False(t, mid.Matches("a.b.c"))
}

func TestMatchAny(t *testing.T) {
	patterns, err := CompileAll([]string{"user.*", "order.created"})
	require.NoError(t, err)

	assert.True(t, MatchAny(patterns, "user.login"))
	assert.True(t, MatchAny(patterns, "order.created"))
	assert.False(t, MatchAny(patterns, "order.updated"))
}
