package catalog

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic catalog sync: an interval timer (interval
// re-read each cycle so it can be hot-updated), an optional cron schedule,
// and a startup sync when no snapshot exists yet.
type Scheduler struct {
	syncer   *Syncer
	store    *Store
	interval func() time.Duration
	schedule string

	cron   *cron.Cron
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler. schedule may be empty to disable the cron
// trigger.
func NewScheduler(syncer *Syncer, store *Store, interval func() time.Duration, schedule string) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		store:    store,
		interval: interval,
		schedule: schedule,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the interval loop and the optional cron trigger. When no
// snapshot is installed yet, a sync runs immediately.
func (s *Scheduler) Start() error {
	if s.schedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.schedule, func() { s.runOnce("cron") }); err != nil {
			return err
		}
		s.cron.Start()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if _, found, err := s.currentVersion(); err == nil && !found {
			s.runOnce("startup")
		}

		timer := time.NewTimer(s.interval())
		defer timer.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-timer.C:
				s.runOnce("interval")
				timer.Reset(s.interval())
			}
		}
	}()
	return nil
}

func (s *Scheduler) currentVersion() (int64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.store.CurrentVersion(ctx)
}

// Stop halts both triggers and waits for any in-progress cycle.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
}

func (s *Scheduler) runOnce(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	_, err := s.syncer.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning):
		log.Printf("[catalog] %s sync skipped: already running", trigger)
	default:
		log.Printf("[catalog] %s sync failed: %v", trigger, err)
	}
}
