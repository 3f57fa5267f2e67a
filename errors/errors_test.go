package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	sentinel := New("base failure")
	wrapped := Wrap(sentinel, "while homing")

	require.Error(t, wrapped)
	assert.True(t, Is(wrapped, sentinel))
	assert.Contains(t, wrapped.Error(), "while homing")
	assert.Contains(t, wrapped.Error(), "base failure")
}

func TestHintsAndDetails(t *testing.T) {
	err := New("camera busy")
	err = WithHint(err, "retry after the current capture completes")
	err = WithDetail(err, "tray: 12")

	assert.Equal(t, []string{"retry after the current capture completes"}, GetAllHints(err))
	assert.Equal(t, []string{"tray: 12"}, GetAllDetails(err))
}
