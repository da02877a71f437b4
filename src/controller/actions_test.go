package controller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		direction   string
		comment     string
		expected    Action
		name        string
		description string
	}{
		{"buy", "go_long", ActionOpenLong, "open_long", "Opened long position"},
		{"sell", "go_short", ActionOpenShort, "open_short", "Opened short position"},
		{"sell", "exit_long", ActionCloseLong, "close_long", "Closed long position"},
		{"buy", "exit_short", ActionCloseShort, "close_short", "Closed short position"},
		{" BUY ", "Go_Long", ActionOpenLong, "open_long", "Opened long position"},
	}

	for _, tt := range tests {
		got, err := ParseAction(tt.direction, tt.comment)
		require.NoError(t, err, "%s/%s", tt.direction, tt.comment)
		assert.Equal(t, tt.expected, got)
		assert.Equal(t, tt.name, got.String())
		assert.Equal(t, tt.description, got.Description())
	}
}

func TestParseActionUnknown(t *testing.T) {
	for _, pair := range [][2]string{
		{"buy", "go_short"},
		{"sell", "go_long"},
		{"hold", "go_long"},
		{"", ""},
	} {
		_, err := ParseAction(pair[0], pair[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownAction))
		assert.True(t, IsInputError(err))
	}
}

func TestActionIsOpen(t *testing.T) {
	assert.True(t, ActionOpenLong.IsOpen())
	assert.True(t, ActionOpenShort.IsOpen())
	assert.False(t, ActionCloseLong.IsOpen())
	assert.False(t, ActionCloseShort.IsOpen())
	assert.Equal(t, "action(9)", Action(9).String())
}
