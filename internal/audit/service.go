package audit

import (
	"log"
	"sync"
	"time"
)

// Service is the async writer in front of the Repo. Emit performs a
// non-blocking channel send (drops on overflow); a background goroutine
// flushes batches on size or timer.
type Service struct {
	repo      *Repo
	queue     chan Record
	batchSize int
	interval  time.Duration

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// ServiceConfig configures the audit writer.
type ServiceConfig struct {
	Repo          *Repo
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
}

// NewService creates the audit writer.
func NewService(cfg ServiceConfig) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 256
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		repo:      cfg.Repo,
		queue:     make(chan Record, queueSize),
		batchSize: batchSize,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the flush loop to stop, drains remaining records, and returns.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Emit enqueues a record. Non-blocking; drops on overflow.
func (s *Service) Emit(rec Record) {
	select {
	case s.queue <- rec:
	default:
		// Queue full: drop rather than block the lookup path. The cache
		// copy of the record remains authoritative.
	}
}

// Repo returns the underlying repository for query access.
func (s *Service) Repo() *Repo {
	return s.repo
}

func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]Record, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []Record) {
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *Service) flush(records []Record) {
	if n, err := s.repo.InsertBatch(records); err != nil {
		log.Printf("[audit] flush %d records failed: %v", len(records), err)
	} else if n > 0 {
		log.Printf("[audit] flushed %d records", n)
	}
}
