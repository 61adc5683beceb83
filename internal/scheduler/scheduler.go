package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"CryptoWatch/internal/collector"
	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/recorder"
	"CryptoWatch/internal/runid"
	"CryptoWatch/internal/store"

	"github.com/robfig/cron/v3"
)

// Ingestor is the unit of work triggered by the poll timer.
type Ingestor interface {
	RunWithID(ctx context.Context, id string) (*collector.Result, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Ingestor  Ingestor
	Recorder  recorder.Recorder
	ChangeLog store.ChangeLog
	Metrics   *metrics.Metrics
	Retention time.Duration
	Timeout   time.Duration
	Ctx       context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, ing Ingestor, rec recorder.Recorder, cl store.ChangeLog, m *metrics.Metrics, retention time.Duration) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		Ingestor:  ing,
		Recorder:  rec,
		ChangeLog: cl,
		Metrics:   m,
		Retention: retention,
		Timeout:   30 * time.Second,
		Ctx:       ctx,
	}
}

// RegisterAll registers the ingest timer and the dead-letter retention purge.
func (s *Scheduler) RegisterAll(pollInterval time.Duration, purgeCron string) error {
	if pollInterval <= 0 {
		return fmt.Errorf("register ingest task: poll interval must be positive")
	}
	if _, err := s.Cron.AddFunc(fmt.Sprintf("@every %s", pollInterval), s.ingestTask); err != nil {
		return fmt.Errorf("register ingest task: %w", err)
	}
	if _, err := s.Cron.AddFunc(purgeCron, s.purgeTask); err != nil {
		return fmt.Errorf("register purge task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunIngestNow executes the ingest task immediately (for RUN_ON_START).
func (s *Scheduler) RunIngestNow() error {
	return s.ingest()
}

func (s *Scheduler) ingestTask() {
	_ = s.ingest()
}

func (s *Scheduler) ingest() error {
	id := runid.New()
	ctx, cancel := context.WithTimeout(s.Ctx, s.Timeout)
	defer cancel()

	log.Printf("[INFO] running ingest task, run id: %s", id)
	res, err := s.Ingestor.RunWithID(ctx, id)
	if err != nil {
		log.Printf("[ERROR] ingest: %v", err)
		payload := ""
		if res != nil {
			payload = fmt.Sprintf("upserted=%v missing=%v", res.Upserted, res.Missing)
		}
		if dlErr := s.Recorder.RecordDeadLetter(&recorder.DeadLetter{
			Source:   recorder.SourceIngest,
			RunID:    id,
			Reason:   err.Error(),
			Payload:  payload,
			Attempts: 1,
		}); dlErr != nil {
			log.Printf("[ERROR] record dead letter: %v, run id: %s", dlErr, id)
		} else {
			s.Metrics.DeadLetter(recorder.SourceIngest)
		}
		return err
	}
	return nil
}

func (s *Scheduler) purgeTask() {
	before := time.Now().Add(-s.Retention)
	n, err := s.Recorder.PurgeDeadLetters(before)
	if err != nil {
		log.Printf("[ERROR] purge dead letters: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] purged %d dead letters older than %s", n, s.Retention)
	}

	if s.ChangeLog == nil {
		return
	}
	n, err = s.ChangeLog.PurgeChanges(s.Ctx, before)
	if err != nil {
		log.Printf("[ERROR] purge change log: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] purged %d change log entries older than %s", n, s.Retention)
	}
}
