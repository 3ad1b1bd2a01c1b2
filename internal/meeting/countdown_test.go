package meeting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{35 * time.Minute, "35:00"},
		{34*time.Minute + 59*time.Second, "34:59"},
		{34*time.Minute + 59*time.Second + 300*time.Millisecond, "35:00"},
		{time.Second, "00:01"},
		{time.Millisecond, "00:01"},
		{0, "00:00"},
		{-time.Minute, "00:00"},
		{2 * time.Hour, "120:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRemaining(tt.in), tt.in.String())
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ERROR", Failed.String())
	assert.Equal(t, "NOT_JOINABLE", NotJoinable.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
	assert.True(t, Expired.Terminal())
	assert.False(t, Active.Terminal())
}
