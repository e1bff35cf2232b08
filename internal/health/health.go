// Package health reports the reachability of the database, object storage
// and redis.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Component status values
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Component names
const (
	ComponentDB    = "db"
	ComponentS3    = "s3"
	ComponentRedis = "redis"
)

// ErrNotConfigured is reported for a component that has no check registered
var ErrNotConfigured = errors.New("not configured")

// CheckFunc checks one component
type CheckFunc func(ctx context.Context) error

// Status is the result of one check
type Status struct {
	Status   string `json:"status"`
	Endpoint string `json:"endpoint,omitempty"`
	Error    string `json:"error,omitempty"`
}

type check struct {
	fn       CheckFunc
	endpoint string
}

// Checker runs the registered checks with a per-check timeout
type Checker struct {
	timeout time.Duration
	checks  map[string]check
}

// NewChecker creates a checker for the standard components
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{timeout: timeout, checks: map[string]check{}}
}

// Register adds or replaces the check for a component. endpoint is reported
// alongside a successful result when not empty.
func (c *Checker) Register(name string, fn CheckFunc, endpoint string) {
	c.checks[name] = check{fn: fn, endpoint: endpoint}
}

// Check runs the check of a single component
func (c *Checker) Check(ctx context.Context, name string) Status {
	chk, ok := c.checks[name]
	if !ok || chk.fn == nil {
		return Status{Status: StatusDown, Error: ErrNotConfigured.Error()}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := chk.fn(ctx); err != nil {
		return Status{Status: StatusDown, Error: err.Error()}
	}
	return Status{Status: StatusUp, Endpoint: chk.endpoint}
}

// Overview checks db, s3 and redis concurrently. The overall status is up
// only when every component is up.
func (c *Checker) Overview(ctx context.Context) map[string]any {
	names := []string{ComponentDB, ComponentS3, ComponentRedis}

	var (
		mu      sync.Mutex
		results = make(map[string]Status, len(names))
		g       errgroup.Group
	)
	for _, name := range names {
		g.Go(func() error {
			st := c.Check(ctx, name)
			mu.Lock()
			results[name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusUp
	out := make(map[string]any, len(names)+1)
	for _, name := range names {
		if results[name].Status != StatusUp {
			overall = StatusDown
		}
		out[name] = results[name]
	}
	out["status"] = overall
	return out
}

// Redis returns a check that pings the server at url, plus a close function
func Redis(url string) (CheckFunc, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	ping := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return ping, client.Close, nil
}
