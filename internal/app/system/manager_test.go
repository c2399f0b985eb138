package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recording(name string, log *[]string, startErr error) Func {
	return Func{
		ServiceName: name,
		OnStart: func(context.Context) error {
			*log = append(*log, "start "+name)
			return startErr
		},
		OnStop: func(context.Context) error {
			*log = append(*log, "stop "+name)
			return nil
		},
	}
}

func TestManagerOrder(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recording("a", &log, nil)))
	require.NoError(t, m.Register(recording("b", &log, nil)))
	assert.Error(t, m.Register(recording("a", &log, nil)))
	assert.Equal(t, []string{"a", "b"}, m.Names())

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Register(recording("c", &log, nil)))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recording("a", &log, nil)))
	require.NoError(t, m.Register(recording("b", &log, errors.New("boom"))))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, log)
	require.NoError(t, m.Stop(context.Background()))
}
