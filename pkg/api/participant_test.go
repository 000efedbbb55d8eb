package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	for in, want := range map[string]Priority{
		"high":     PriorityHigh,
		"Medium":   PriorityMedium,
		" LOW ":    PriorityLow,
		"medium\n": PriorityMedium,
	} {
		got, err := ParsePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "urgent", "hi"} {
		_, err := ParsePriority(in)
		assert.ErrorIs(t, err, ErrInvalidPriority, in)
	}
	assert.False(t, Priority("").IsValid())
}
