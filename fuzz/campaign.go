package fuzz

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

// errDiverged stops the other workers once one has found a divergence.
var errDiverged = errors.New("divergence found")

// Campaign runs the shapes of a Config on parallel runners, each owning an
// independent arena, interpreter and JIT.
type Campaign struct {
	ID     xid.ID
	config *Config
	log    logr.Logger

	mu         sync.Mutex
	divergence *Divergence
	completed  int
}

// NewCampaign creates a campaign. The configuration must be valid.
func NewCampaign(config *Config, log logr.Logger) *Campaign {
	return &Campaign{
		ID:     xid.New(),
		config: config,
		log:    log,
	}
}

// Completed returns the number of runs finished so far.
func (c *Campaign) Completed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Run executes every shape and returns the first divergence found, or nil.
// Runs of each shape are split evenly across the workers.
func (c *Campaign) Run(ctx context.Context) (*Divergence, error) {
	set, err := SetByName(c.config.Set)
	if err != nil {
		return nil, err
	}

	workers := c.config.Workers
	log := c.log.WithValues("campaign", c.ID.String(), "set", set.Name)
	log.Info("starting campaign", "workers", workers, "seed", c.config.Seed)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return c.work(ctx, w, workers, log.WithValues("worker", w))
		})
	}

	err = g.Wait()
	if c.divergence != nil {
		return c.divergence, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info("campaign passed", "runs", c.Completed())
	return nil, nil
}

// work runs worker w's share of every shape.
func (c *Campaign) work(ctx context.Context, w, workers int, log logr.Logger) error {
	set, err := SetByName(c.config.Set)
	if err != nil {
		return err
	}
	runner := NewRunner(set, c.config.Seed+uint64(w),
		WithLogger(log),
		WithCodeHalfwords(c.config.CodeHalfwords),
		WithMaxBlockLength(c.config.MaxBlockLength))

	for _, shape := range c.config.ResolvedShapes() {
		for run := w; run < shape.Runs; run += workers {
			if err := ctx.Err(); err != nil {
				return err
			}

			if d := runner.RunOnce(run, shape.Instructions, shape.Execute); d != nil {
				c.mu.Lock()
				if c.divergence == nil {
					c.divergence = d
				}
				c.mu.Unlock()
				return errDiverged
			}

			c.mu.Lock()
			c.completed++
			c.mu.Unlock()
		}
		log.V(1).Info("shape finished", "shape", shape.Name)
	}
	return nil
}
