package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
		{10, 30000 * time.Millisecond}, // capped
		{100, 30000 * time.Millisecond},
	}
	for _, tt := range tests {
		got := backoffDelay(DefaultBaseDelay, DefaultMaxDelay, tt.n)
		assert.Equal(t, tt.want, got, "delay(%d)", tt.n)
	}
}

func TestBackoffDelay_NegativeTreatedAsZero(t *testing.T) {
	assert.Equal(t, DefaultBaseDelay, backoffDelay(DefaultBaseDelay, DefaultMaxDelay, -1))
}

func TestBackoffDelay_ShiftOverflowCaps(t *testing.T) {
	assert.Equal(t, DefaultMaxDelay, backoffDelay(DefaultBaseDelay, DefaultMaxDelay, 62))
}
