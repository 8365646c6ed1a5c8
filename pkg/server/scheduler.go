package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultLeadDuration     = 5 * time.Minute // before a run, OnUpcoming is called this early
	defaultPreCheckMaxTimes = 30
	defaultPreCheckInterval = 10 * time.Second

	// idleWait is how long the loop sleeps when nothing is scheduled.
	idleWait = 10000 * time.Hour
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron validates a cron expression. Seconds are optional and
// descriptors such as @monthly are accepted.
func ParseCron(expr string) (cron.Schedule, error) {
	sh, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sh, nil
}

// NextRuns returns the next n activation times of sh after from.
func NextRuns(sh cron.Schedule, from time.Time, n int) []time.Time {
	runs := make([]time.Time, 0, n)
	for range n {
		from = sh.Next(from)
		runs = append(runs, from)
	}
	return runs
}

type NotifyFunc func(data any)

// TaskFunc is a unit of scheduled work. ctx is cancelled when the scheduler stops.
type TaskFunc func(ctx context.Context) error

// Scheduler runs Task on a cron schedule. OnUpcoming fires LeadDuration
// before each run. A failing PreCheck is retried PreCheckMaxTimes times,
// PreCheckInterval apart, before the run is given up.
type Scheduler struct {
	OnUpcoming NotifyFunc
	OnError    NotifyFunc
	Task       TaskFunc
	PreCheck   TaskFunc

	LeadDuration     time.Duration
	PreCheckMaxTimes int
	PreCheckInterval time.Duration

	schedule cron.Schedule
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan controlMsg
	stopCh    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule already replaced or cleared
	ctrlPostpone                       // only the current run moves
	ctrlSkip                           // nextRun already advanced
)

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(task, preCheck TaskFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		OnUpcoming:       onUpcoming,
		OnError:          onError,
		Task:             task,
		PreCheck:         preCheck,
		LeadDuration:     defaultLeadDuration,
		PreCheckMaxTimes: defaultPreCheckMaxTimes,
		PreCheckInterval: defaultPreCheckInterval,
		controlCh:        make(chan controlMsg, 4),
		stopCh:           make(chan struct{}),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Stop ends the loop, cancels running tasks and waits for them to return.
// A stopped scheduler cannot be started again.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.running = true
	s.wg.Add(1)
	go s.runScheduled()
}

// Schedule replaces the current schedule.
func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := ParseCron(cronExpr)
	if err != nil {
		return err
	}
	s.apply(sh)
	return nil
}

// Unschedule clears the schedule. The loop keeps running idle.
func (s *Scheduler) Unschedule() {
	s.apply(nil)
}

// apply installs sh immediately and wakes the loop so it re-reads the
// schedule. Readers see the new next run as soon as apply returns.
func (s *Scheduler) apply(sh cron.Schedule) {
	s.mu.Lock()
	s.setScheduleLocked(sh)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, nil)
	}
}

func (s *Scheduler) setScheduleLocked(sh cron.Schedule) {
	s.schedule = sh
	if sh == nil {
		s.nextRun = time.Time{}
		return
	}
	s.nextRun = sh.Next(time.Now())
}

// Postpone moves the next run later by d. The postponed run must still
// come before the one after it.
func (s *Scheduler) Postpone(d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() || !s.running {
		s.mu.Unlock()
		return time.Time{}, fmt.Errorf("no active schedule to postpone")
	}
	orig := s.nextRun
	following := s.schedule.Next(orig).Truncate(time.Second)
	s.mu.Unlock()

	pp := orig.Add(d).Truncate(time.Second)
	if pp.Compare(following) >= 0 {
		return time.Time{}, fmt.Errorf("postpone duration too long: the next run is at %s", following.Format(time.DateTime))
	}

	s.mu.Lock()
	s.nextRun = pp
	s.mu.Unlock()
	s.trySendControl(ctrlPostpone, pp)
	return pp, nil
}

// Skip drops the next run and returns the one after it.
func (s *Scheduler) Skip() (time.Time, error) {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return time.Time{}, fmt.Errorf("no active schedule to skip")
	}
	next := s.schedule.Next(s.nextRun)
	s.nextRun = next
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return next, nil
}

// Status reports the next run (zero when nothing is scheduled) and whether
// the loop is running.
func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextRun = s.nextRun
	running = s.running
	return
}

// Upcoming returns the next n runs, starting with the pending one.
func (s *Scheduler) Upcoming(n int) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || s.nextRun.IsZero() || n <= 0 {
		return []time.Time{}
	}
	return append([]time.Time{s.nextRun}, NextRuns(s.schedule, s.nextRun, n-1)...)
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.wg.Done()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		leading := true

		attempts := 0
		var precheckErr error

		schedule, nextRun := s.snapshot()
		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			timer = time.NewTimer(idleWait)
		} else {
			timer = time.NewTimer(max(time.Until(nextRun)-s.LeadDuration, 0))
		}

	wait:
		for {
			select {
			case <-timer.C:
				if schedule == nil || nextRun.IsZero() {
					break wait
				}
				// A dropped control message must not run a stale slot.
				if _, cur := s.snapshot(); !cur.Equal(nextRun) {
					break wait
				}

				if leading {
					logrus.Debugf("upcoming scheduled task at %s", nextRun.Format(time.DateTime))
					leading = false
					timer.Reset(max(time.Until(nextRun), 0))
					s.notify(s.OnUpcoming, nextRun)
					continue
				}

				logrus.Debugf("running scheduled task at %s", nextRun.Format(time.DateTime))

				if s.PreCheck != nil {
					if err := s.PreCheck(s.ctx); err != nil {
						if precheckErr == nil || err.Error() != precheckErr.Error() {
							precheckErr = err
							s.notify(s.OnError, fmt.Errorf("precheck failed: %w", err))
						}

						attempts++
						if attempts <= s.PreCheckMaxTimes {
							logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, s.PreCheckMaxTimes, err, s.PreCheckInterval)
							timer.Reset(s.PreCheckInterval)
							continue
						}

						s.advanceNextRun(nextRun)
						break wait
					}
				}

				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					if err := s.Task(s.ctx); err != nil {
						s.notify(s.OnError, fmt.Errorf("task failed: %w", err))
					}
				}()
				s.advanceNextRun(nextRun)
				break wait
			case <-s.stopCh:
				timer.Stop()
				return
			case msg := <-s.controlCh:
				logrus.WithFields(logrus.Fields{
					"kind": msg.kind,
					"data": msg.data,
				}).Debug("received control msg")

				switch msg.kind {
				case ctrlRecalculate, ctrlSkip:
				case ctrlPostpone:
					pp := msg.data.(time.Time)
					nextRun = pp
					leading = true
					timer.Reset(max(time.Until(pp)-s.LeadDuration, 0))
					continue
				}
				timer.Stop()
				break wait
			}
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

// advanceNextRun moves past ran unless a control message already moved it.
func (s *Scheduler) advanceNextRun(ran time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(ran) {
		return
	}
	s.nextRun = s.schedule.Next(ran)
}

func (s *Scheduler) notify(fn NotifyFunc, data any) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(data)
	}()
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
