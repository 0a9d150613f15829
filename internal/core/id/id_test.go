package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsVersion7(t *testing.T) {
	a := New()
	b := New()

	assert.Equal(t, uuid.Version(7), a.Version())
	assert.NotEqual(t, a, b)
	assert.False(t, IsNil(a))
}

func TestNewString_Parses(t *testing.T) {
	s := NewString()

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, s, parsed.String())

	_, err = Parse("not-a-uuid")
	assert.Error(t, err)
}
