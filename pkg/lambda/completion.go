package lambda

import (
	"context"
	"sync"
)

// Completion delivers the outcome of a Response exactly once. The outcome
// can be observed through the callback given at construction, through
// Done/Wait, or both. Wait may be called any number of times.
type Completion struct {
	once     sync.Once
	done     chan struct{}
	callback CompletionFunc

	out *Artifact
	err error
}

// NewCompletion creates a pending completion. callback may be nil.
func NewCompletion(callback CompletionFunc) *Completion {
	return &Completion{
		done:     make(chan struct{}),
		callback: callback,
	}
}

// Resolve settles the completion with an artifact
func (c *Completion) Resolve(out *Artifact) {
	c.settle(nil, out)
}

// Reject settles the completion with a failure
func (c *Completion) Reject(err error) {
	c.settle(err, nil)
}

func (c *Completion) settle(err error, out *Artifact) {
	settled := false
	c.once.Do(func() {
		c.out, c.err = out, err
		close(c.done)
		settled = true
	})
	if settled && c.callback != nil {
		c.callback(err, out)
	}
}

// Done is closed once the completion is settled
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Settled reports whether Resolve or Reject has been called
func (c *Completion) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// result returns the settled outcome. Only valid once Done is closed.
func (c *Completion) result() (*Artifact, error) {
	return c.out, c.err
}

// Wait blocks until the completion settles or ctx is done
func (c *Completion) Wait(ctx context.Context) (*Artifact, error) {
	if c.Settled() {
		return c.out, c.err
	}
	select {
	case <-c.done:
		return c.out, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
