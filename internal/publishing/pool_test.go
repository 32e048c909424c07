package publishing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAndDrains(t *testing.T) {
	t.Parallel()

	p := NewPool(2, 10, nil, nil)
	var ran int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit("job", func(context.Context) { atomic.AddInt32(&ran, 1) }))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))

	assert.ErrorIs(t, p.Submit("late", func(context.Context) {}), ErrPoolClosed)
}

func TestPoolRejectsWhenFull(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1, nil, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit("block", func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit("queued", func(context.Context) {}))

	err := p.Submit("overflow", func(context.Context) {})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolSurvivesPanics(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 2, nil, nil)
	var ran int32
	require.NoError(t, p.Submit("panic", func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit("after", func(context.Context) { atomic.AddInt32(&ran, 1) }))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}
