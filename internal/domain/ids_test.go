package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    UserID
		wantErr bool
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "trimmed", input: "  bob_42-x ", want: "bob_42-x"},
		{name: "max length", input: strings.Repeat("a", 100), want: UserID(strings.Repeat("a", 100))},
		{name: "too long", input: strings.Repeat("a", 101), wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
		{name: "illegal char", input: "alice@example", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUserID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSessionKeyAndDriver(t *testing.T) {
	_, err := ParseSessionKey(0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	k, err := ParseSessionKey(9158)
	require.NoError(t, err)
	assert.Equal(t, SessionKey(9158), k)

	for _, n := range []int{0, 100, -1} {
		_, err := ParseDriverNumber(n)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	d, err := ParseDriverNumber(44)
	require.NoError(t, err)
	assert.Equal(t, DriverNumber(44), d)
}
