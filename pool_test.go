package nightjar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetResetsSession(t *testing.T) {

	ctx := context.Background()

	p, err := NewPool(1, func() (*Session, error) {
		return NewSession(testConfig(), nil, WithRenderer(&nopRenderer{}),
			WithTracker(byClass(1)))
	})
	require.NoError(t, err)
	defer p.Close()

	sess, err := p.Get(ctx)
	require.NoError(t, err)

	_, err = sess.ProcessFrame(ctx, frame(raw(0, 0.9, 0, 0, 10, 10)))
	require.NoError(t, err)
	require.Len(t, sess.Histories(), 1)

	p.Return(sess)

	again, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Empty(t, again.Histories())
	assert.Zero(t, again.FrameNum())
}

func TestPoolGetWaits(t *testing.T) {

	p, err := NewPool(1, func() (*Session, error) {
		return NewSession(testConfig(), nil, WithRenderer(&nopRenderer{}))
	})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Close()

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestNewPoolError(t *testing.T) {

	calls := 0

	_, err := NewPool(3, func() (*Session, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("no font")
		}
		return NewSession(testConfig(), nil, WithRenderer(&nopRenderer{}))
	})

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
