// Package scheduler runs the platform's periodic jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

var (
	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Periodic job runs by job and outcome.",
	}, []string{"job", "outcome"})
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "elimu",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Periodic job run durations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(jobRuns, jobDuration)
}

// Job is run every Interval until the scheduler stops.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

type Scheduler struct {
	jobs   []Job
	logger core.Logger
}

func New(logger core.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{logger: logger, jobs: jobs}
}

// Add registers a job. Jobs without an interval are listed and can be run once, but Start skips them.
func (s *Scheduler) Add(j Job) {
	s.jobs = append(s.jobs, j)
}

// Start runs every job on its own ticker and returns when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		if j.Interval <= 0 || j.Run == nil {
			continue
		}
		j := j
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	s.logger.Info(fmt.Sprintf("job %s scheduled every %s", j.Name, j.Interval))
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			_ = s.RunOnce(ctx, j, t)
		}
	}
}

// RunOnce runs j, recording its outcome. Panics are recovered and reported as errors.
func (s *Scheduler) RunOnce(ctx context.Context, j Job, now time.Time) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job %s panicked: %v", j.Name, r)
		}
		jobDuration.WithLabelValues(j.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			jobRuns.WithLabelValues(j.Name, "error").Inc()
			s.logger.Error(fmt.Sprintf("job %s: %v", j.Name, err), err)
			return
		}
		jobRuns.WithLabelValues(j.Name, "ok").Inc()
	}()
	return j.Run(ctx, now)
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}
