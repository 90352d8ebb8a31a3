package jobs

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

type Job interface {
	Run()
}

type CronJob interface {
	// Schedule is a cron expression, e.g. "@every 1m".
	Schedule() string
	Job
}

// Runner drives background jobs on cron schedules. A job that is still
// running when its next tick arrives is skipped, not stacked.
type Runner struct {
	cron    *cron.Cron
	jobs    []CronJob
	running mapset.Set[CronJob]
	mu      sync.Mutex
}

func NewRunner(jobs ...CronJob) *Runner {
	return &Runner{
		cron:    cron.New(),
		jobs:    jobs,
		running: mapset.NewSet[CronJob](),
	}
}

func (r *Runner) Start() {
	for _, job := range r.jobs {
		err := r.cron.AddFunc(job.Schedule(), func() {
			r.mu.Lock()
			if r.running.Contains(job) {
				r.mu.Unlock()
				logrus.Warn("job is still running, skipping tick")
				return
			}
			r.running.Add(job)
			r.mu.Unlock()

			defer func() {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.running.Remove(job)
			}()

			job.Run()
		})

		if err != nil {
			logrus.Errorf("failed to add job to cron: %v", err)
			panic(err)
		}
	}

	r.cron.Start()
}

func (r *Runner) Stop() {
	logrus.Infof("stopping all jobs")
	r.cron.Stop()
}
