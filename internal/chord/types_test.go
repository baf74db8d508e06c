package chord

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Text(t *testing.T) {
	tests := []struct {
		state State
		name  string
	}{
		{StateDetached, "detached"},
		{StateJoining, "joining"},
		{StateActive, "active"},
		{StateLeaving, "leaving"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())

			data, err := json.Marshal(tt.state)
			require.NoError(t, err)
			assert.Equal(t, `"`+tt.name+`"`, string(data))

			var got State
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.state, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, "State(9)", State(9).String())

		var s State
		assert.ErrorContains(t, s.UnmarshalText([]byte("gone")), `unknown node state "gone"`)
	})
}
