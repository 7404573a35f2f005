package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/core"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 4)
	assert.ErrorIs(t, err, core.ErrNoWorkers)
	_, err = NewJobSystem(2, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(4, 16)
	require.NoError(t, err)

	var completed, failed atomic.Int32
	var mu sync.Mutex
	var results []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, js.Submit(JobTask{
			Name: "square",
			OnStart: func() (interface{}, error) {
				if i%5 == 0 {
					return nil, errors.New("boom")
				}
				return i * i, nil
			},
			OnComplete: func(result interface{}) {
				completed.Add(1)
				mu.Lock()
				results = append(results, result.(int))
				mu.Unlock()
			},
			OnFailure: func(err error) {
				failed.Add(1)
			},
		}))
	}
	require.NoError(t, js.Shutdown())

	assert.Equal(t, int32(16), completed.Load())
	assert.Equal(t, int32(4), failed.Load())
	assert.Contains(t, results, 49)
}

func TestJobSystemShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)

	assert.Error(t, js.Submit(JobTask{Name: "empty"}))
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(JobTask{OnStart: func() (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
}
