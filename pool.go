package nightjar

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get once the pool has been closed
var ErrPoolClosed = errors.New("session pool closed")

// Pool is a simple pool of Sessions so a server can run a limited number of
// streams at once, each with its own track history and tracker
type Pool struct {
	// pool of sessions
	sessions chan *Session
	// size of pool
	size  int
	close sync.Once
	done  chan struct{}
}

// NewPool creates a pool of size sessions built by newSession
func NewPool(size int, newSession func() (*Session, error)) (*Pool, error) {

	if size < 1 {
		size = 1
	}

	p := &Pool{
		sessions: make(chan *Session, size),
		size:     size,
		done:     make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		sess, err := newSession()

		if err != nil {
			p.Close()
			return nil, err
		}

		p.Return(sess)
	}

	return p, nil
}

// Size returns the number of sessions in the pool
func (p *Pool) Size() int {
	return p.size
}

// Get waits for a free session.  The session is Reset before it is handed
// out so every stream starts with no history.
func (p *Pool) Get(ctx context.Context) (*Session, error) {

	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case sess, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		sess.Reset()
		return sess, nil

	case <-p.done:
		return nil, ErrPoolClosed

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return a session to the pool
func (p *Pool) Return(sess *Session) {

	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.sessions <- sess:
	default:
		// pool is full
	}
}

// Close the pool, sessions in use are not affected
func (p *Pool) Close() {
	p.close.Do(func() {
		close(p.done)
	})
}
