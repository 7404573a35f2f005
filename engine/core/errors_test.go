package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineErrorMatchesSentinelByKind(t *testing.T) {
	err := NewFrameDropped(StageRecord, "end failed", errors.New("boom"))
	wrapped := fmt.Errorf("render: %w", err)

	assert.ErrorIs(t, wrapped, ErrFrameDropped)
	assert.NotErrorIs(t, wrapped, ErrDeviceLost)
	assert.Equal(t, KindFrameDropped, KindOf(wrapped))
	assert.Contains(t, err.Error(), "record")
	assert.Contains(t, err.Error(), "end failed")
	assert.Contains(t, err.Error(), "boom")
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err   error
		fatal bool
	}{
		{NewInitializationFailure(StageDevice, nil), true},
		{NewError(KindDeviceLost, StageSubmit, nil), true},
		{ErrShuttingDown, true},
		{NewFrameDropped(StageRecord, "x", nil), false},
		{NewStaleHandle(StageQueue, "mesh"), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.fatal, IsFatal(tt.err), tt.err.Error())
	}
}
