package flow

import (
	"time"

	"github.com/dshills/flow/emit"
)

// Option configures an Executor or BatchRunner. Options compose: later
// options override earlier ones for scalar fields.
type Option func(*config) error

type config struct {
	emitter              emit.Emitter
	metrics              *PrometheusMetrics
	tracker              *ResourceTracker
	defaultTimeout       time.Duration
	defaultRetry         *RetryPolicy
	releasePolicy        ShouldReleaseBetween
	abortOnResourceError bool
}

func newConfig() *config {
	return &config{emitter: emit.NewNullEmitter()}
}

// WithEmitter sets the Emitter used for lifecycle/cache observability
// events. Default is a NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *config) error {
		c.emitter = e
		return nil
	}
}

// WithMetrics attaches a PrometheusMetrics collector.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithResourceTracker attaches a ResourceTracker used to verify the
// one-init-per-node-per-batch invariant.
func WithResourceTracker(rt *ResourceTracker) Option {
	return func(c *config) error {
		c.tracker = rt
		return nil
	}
}

// WithDefaultNodeTimeout sets the timeout applied to a node's process step
// when the node itself declares none. Zero means unlimited.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.defaultTimeout = d
		return nil
	}
}

// WithDefaultRetryPolicy sets the retry policy applied to a node's process
// step when the node itself declares none.
func WithDefaultRetryPolicy(rp *RetryPolicy) Option {
	return func(c *config) error {
		if rp != nil {
			if err := rp.Validate(); err != nil {
				return err
			}
		}
		c.defaultRetry = rp
		return nil
	}
}

// WithShouldReleaseBetween sets the BatchRunner's eviction policy, called
// after each level (one node swept across every item) to decide whether
// to release every resident node before the next level begins.
func WithShouldReleaseBetween(f ShouldReleaseBetween) Option {
	return func(c *config) error {
		c.releasePolicy = f
		return nil
	}
}

// WithAbortOnResourceError configures a BatchRunner to abort the whole
// batch the first time a node's init or release fails, instead of the
// default behavior of recording a per-item Failure and continuing with
// the next item. Use this when a ResourceError (e.g. GPU unavailable)
// signals a condition no later item can plausibly recover from, unlike a
// NodeError, which stays per-item.
func WithAbortOnResourceError() Option {
	return func(c *config) error {
		c.abortOnResourceError = true
		return nil
	}
}

func applyOptions(opts []Option) (*config, error) {
	c := newConfig()
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}
