package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every() instead of on every tick.
type Periodic interface {
	Every() time.Duration
}

// Registry holds jobs in registration order, one per name.
type Registry struct {
	jobs  []Job
	index map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job. A job with an already registered name replaces the
// earlier one in place.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[job.Name()]; ok {
		r.jobs[i] = job
		return
	}
	r.index[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func cadence(job Job) time.Duration {
	if p, ok := job.(Periodic); ok {
		return p.Every()
	}
	return 0
}
