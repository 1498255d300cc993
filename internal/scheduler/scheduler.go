// Package scheduler runs cycles on a fixed interval, never more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"TreasuryCycler/internal/cycle"
	"TreasuryCycler/internal/logging"
	"TreasuryCycler/internal/metrics"
	"TreasuryCycler/internal/model"
	"TreasuryCycler/internal/notifier"
	"TreasuryCycler/internal/recorder"
)

const historyLimit = 10

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context) (*model.CycleReport, error)
}

// StateReader exposes the persisted state for /status.
type StateReader interface {
	Load() model.CycleState
}

// Scheduler owns the cron entry and the single-slot guard shared by every trigger.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	State    StateReader
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Ctx      context.Context

	symbol string
	log    zerolog.Logger

	running sync.Mutex
	wg      sync.WaitGroup
	entry   cron.EntryID

	mu   sync.Mutex
	last *model.CycleReport
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Runner, state StateReader, n notifier.Notifier, rec recorder.Recorder, symbol string, log zerolog.Logger) *Scheduler {
	cl := logging.CronLogger{Log: log}
	return &Scheduler{
		Cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		Runner:   runner,
		State:    state,
		Notifier: n,
		Recorder: rec,
		Ctx:      ctx,
		symbol:   symbol,
		log:      log,
	}
}

// Register adds the periodic cycle entry.
func (s *Scheduler) Register(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	id, err := s.Cron.AddFunc("@every "+interval.String(), func() { s.Trigger("schedule") })
	if err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	s.entry = id
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Time("next", s.Next()).Msg("scheduler started")
}

// Stop stops scheduling and waits for any in-flight cycle.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// Shutdown stops scheduling and waits up to grace for the in-flight cycle.
// Past grace it calls cancel and waits up to drain more, so the cycle is done
// with the recorder before the caller closes it. It reports whether the cycle
// finished.
func (s *Scheduler) Shutdown(grace, drain time.Duration, cancel context.CancelFunc) bool {
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
	}

	s.log.Warn().Dur("grace", grace).Msg("in-flight cycle did not finish, cancelling")
	cancel()
	select {
	case <-done:
		return true
	case <-time.After(drain):
		s.log.Error().Dur("drain", drain).Msg("cancelled cycle still running, giving up")
		return false
	}
}

// Next returns the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.Cron.Entry(s.entry).Next
}

// Trigger runs a cycle in the caller's goroutine. It returns false without
// running when another cycle holds the slot.
func (s *Scheduler) Trigger(reason string) bool {
	if !s.running.TryLock() {
		s.skip(reason)
		return false
	}
	defer s.running.Unlock()
	s.runCycle(reason)
	return true
}

// TriggerAsync claims the slot and runs the cycle in the background.
func (s *Scheduler) TriggerAsync(reason string) bool {
	if !s.running.TryLock() {
		s.skip(reason)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.runCycle(reason)
	}()
	return true
}

// Last returns the most recent cycle report.
func (s *Scheduler) Last() *model.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) skip(reason string) {
	metrics.CyclesSkipped.Inc()
	s.log.Warn().Str("trigger", reason).Msg("cycle already running, trigger dropped")
}

func (s *Scheduler) runCycle(reason string) {
	rep, err := s.Runner.Run(s.Ctx)
	if rep == nil {
		rep = &model.CycleReport{StartedAt: time.Now(), FinishedAt: time.Now()}
		if err != nil {
			rep.Err = err.Error()
		}
	}

	s.observe(rep, err)
	s.logCycle(reason, rep, err)

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	if err := s.Recorder.RecordCycle(rep); err != nil {
		s.log.Error().Err(err).Msg("record cycle")
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, notifier.FormatCycleReport(rep), 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}

func (s *Scheduler) observe(rep *model.CycleReport, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	metrics.CycleDuration.Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	if rep.Converted.IsPositive() {
		metrics.ConvertedTotal.Add(rep.Converted.InexactFloat64())
	}
	if rep.RouteSignature != "" {
		metrics.RoutedTotal.Add(rep.Routed.InexactFloat64())
	}
	if rep.Order != nil {
		metrics.OrdersTotal.WithLabelValues(s.symbol, string(rep.OrderSide)).Inc()
	}
	if err == nil {
		metrics.CarriedBalance.Set(rep.CarriedOut.InexactFloat64())
	}
}

func (s *Scheduler) logCycle(reason string, rep *model.CycleReport, err error) {
	var ev *zerolog.Event
	if err != nil {
		stage := rep.FailedStage
		var se *cycle.StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		ev = s.log.Error().Err(err).Str("stage", stage)
	} else {
		ev = s.log.Info()
	}
	ev.Str("trigger", reason).
		Uint64("position", rep.Snapshot.CurrentPosition).
		Str("converted", rep.Converted.String()).
		Str("total", rep.Total.String()).
		Str("routed", rep.Routed.String()).
		Str("carried", rep.CarriedOut.String()).
		Str("signal", string(rep.Signal)).
		Dur("took", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("cycle finished")
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status":
		return notifier.FormatStatus(s.State.Load(), s.Last(), s.Next())
	case "/run":
		if s.TriggerAsync("command") {
			return "Cycle started."
		}
		return "A cycle is already running."
	case "/history":
		recs, err := s.Recorder.RecentCycles(historyLimit)
		if err != nil {
			s.log.Error().Err(err).Msg("read history")
			return "History unavailable."
		}
		return notifier.FormatHistory(recs)
	default:
		return "Commands:\n• /status\n• /run\n• /history"
	}
}
