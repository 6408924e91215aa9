// Package backend provides the two interchangeable execution backends:
// a bounded local worker pool and a distributed coordinator/worker
// pool. The dispatcher drives either through the same interface.
package backend

import (
	"context"
	"os"
	"strconv"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/registry"
)

const (
	EnvWorldSize = "POSTSIM_WORLD_SIZE"
	EnvRank      = "POSTSIM_RANK"
	EnvCoordAddr = "POSTSIM_COORD_ADDR"

	defaultCoordAddr = "127.0.0.1:9777"
)

// Role is the explicit coordinator/worker distinction, computed once at
// startup and threaded through arguments instead of read from global
// state. Only the coordinator performs output side effects.
type Role int

const (
	Coordinator Role = iota
	Worker
)

func (r Role) String() string {
	if r == Worker {
		return "worker"
	}
	return "coordinator"
}

// Environment is the distributed-launch state captured once at process
// start. A world size of 1 means a plain local run.
type Environment struct {
	WorldSize int
	Rank      int
	CoordAddr string
}

// CaptureEnvironment probes the launch environment. Unset or malformed
// variables degrade to a single-participant local environment.
func CaptureEnvironment() Environment {
	env := Environment{WorldSize: 1, Rank: 0, CoordAddr: defaultCoordAddr}

	if v := os.Getenv(EnvWorldSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			env.WorldSize = n
		}
	}
	if v := os.Getenv(EnvRank); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			env.Rank = n
		}
	}
	if v := os.Getenv(EnvCoordAddr); v != "" {
		env.CoordAddr = v
	}
	return env
}

func (e Environment) Role() Role {
	if e.Rank == 0 {
		return Coordinator
	}
	return Worker
}

// Backend applies a work function across items and delivers outcomes as
// they complete, in arbitrary order.
type Backend interface {
	Apply(ctx context.Context, items []batch.WorkItem, wctx *batch.Context, op registry.Operation) (<-chan batch.Outcome, error)
	Role() Role
}

// Options influence backend selection.
type Options struct {
	ForceLocal bool
	Workers    int
	Registry   *registry.Registry
}

// Select chooses the backend for this process. A distributed launch
// with more than one participant selects the distributed pool unless
// explicitly disabled; one participant or fewer always falls back to
// the local pool.
func Select(env Environment, opts Options) Backend {
	if opts.ForceLocal || env.WorldSize <= 1 {
		return &Local{Workers: opts.Workers}
	}
	return &Distributed{Env: env, Registry: opts.Registry}
}
