package application

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MaxTimers is the maximum number of live tasks a TimerSet can hold.
const MaxTimers = 16

const defaultPollInterval = 10 * time.Millisecond

var ErrTimerCapacity = fmt.Errorf("maximum number of timers (%d) exceeded", MaxTimers)

// TimerFunc is a scheduled callback. It runs on whichever goroutine calls
// Run, so it is serialized with the caller's other work.
type TimerFunc func()

type timerTask struct {
	id       int
	interval time.Duration
	callback TimerFunc
	lastRun  time.Time
	enabled  bool
	runCount int
	maxRuns  int // 0 = unlimited
}

// TimerSet schedules recurring and one-shot callbacks. Due tasks fire when
// Run is called, either from a host loop or from the optional background
// loop started with Start. A callback may mutate the set it belongs to;
// structural changes become visible on the next Run call.
type TimerSet struct {
	mu     sync.Mutex
	tasks  map[int]*timerTask
	nextID int

	running bool
	quit    chan struct{}
	wg      sync.WaitGroup

	nowFunc func() time.Time

	log zerolog.Logger
}

func NewTimerSet(log zerolog.Logger) *TimerSet {
	return &TimerSet{
		tasks:   make(map[int]*timerTask),
		nowFunc: time.Now,
		log:     log,
	}
}

// SetInterval schedules callback to run every interval until deleted.
// It fails with ErrTimerCapacity once MaxTimers tasks are live.
func (t *TimerSet) SetInterval(interval time.Duration, callback TimerFunc) (int, error) {
	return t.schedule(interval, 0, callback)
}

// SetIntervalWithLimit schedules callback to run every interval at most
// maxRuns times; the task is removed after its final run.
func (t *TimerSet) SetIntervalWithLimit(interval time.Duration, maxRuns int, callback TimerFunc) (int, error) {
	return t.schedule(interval, maxRuns, callback)
}

// SetTimeout schedules callback to run once after delay.
func (t *TimerSet) SetTimeout(delay time.Duration, callback TimerFunc) (int, error) {
	return t.schedule(delay, 1, callback)
}

func (t *TimerSet) schedule(interval time.Duration, maxRuns int, callback TimerFunc) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.tasks) >= MaxTimers {
		return 0, ErrTimerCapacity
	}

	id := t.nextID
	t.nextID++

	t.tasks[id] = &timerTask{
		id:       id,
		interval: interval,
		callback: callback,
		lastRun:  t.nowFunc(),
		enabled:  true,
		maxRuns:  maxRuns,
	}
	return id, nil
}

// DeleteTimer removes a task. It returns false if the id is unknown.
func (t *TimerSet) DeleteTimer(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tasks[id]; !ok {
		return false
	}
	delete(t.tasks, id)
	return true
}

func (t *TimerSet) EnableTimer(id int) bool {
	return t.setEnabled(id, true)
}

// DisableTimer keeps the task but stops it from firing.
func (t *TimerSet) DisableTimer(id int) bool {
	return t.setEnabled(id, false)
}

func (t *TimerSet) setEnabled(id int, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return false
	}
	task.enabled = enabled
	return true
}

func (t *TimerSet) ChangeInterval(id int, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return false
	}
	task.interval = interval
	return true
}

// RestartTimer resets a task's last-run time to now and its run count to zero.
func (t *TimerSet) RestartTimer(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return false
	}
	task.lastRun = t.nowFunc()
	task.runCount = 0
	return true
}

// NumTimers returns the number of live tasks.
func (t *TimerSet) NumTimers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Clear removes all tasks.
func (t *TimerSet) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = make(map[int]*timerTask)
}

// Run fires every enabled task whose interval has elapsed since its last
// run and returns the number of callbacks executed. The due set is
// snapshotted under lock before any callback runs, so callbacks may safely
// add or delete tasks on the same set. A panicking callback is logged and
// does not stop the remaining tasks.
func (t *TimerSet) Run() int {
	now := t.nowFunc()

	t.mu.Lock()
	due := make([]*timerTask, 0, len(t.tasks))
	for _, task := range t.tasks {
		if task.enabled && now.Sub(task.lastRun) >= task.interval {
			due = append(due, task)
		}
	}
	t.mu.Unlock()

	for _, task := range due {
		t.invoke(task)

		t.mu.Lock()
		task.runCount++
		// Rebase to this Run call rather than the scheduled time; drift up
		// to the polling granularity is expected.
		task.lastRun = now
		if task.maxRuns > 0 && task.runCount >= task.maxRuns {
			delete(t.tasks, task.id)
		}
		t.mu.Unlock()
	}
	return len(due)
}

func (t *TimerSet) invoke(task *timerTask) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Int("timer_id", task.id).Interface("panic", r).Msg("timer callback panicked")
		}
	}()
	task.callback()
}

// Start runs the set on a background goroutine, calling Run every
// pollInterval (10ms if zero). Calling Start on a running set is a no-op.
func (t *TimerSet) Start(pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.quit = make(chan struct{})
	quit := t.quit
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				t.Run()
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to quiesce.
// Stopping a set that is not running is a no-op.
func (t *TimerSet) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.quit)
	t.mu.Unlock()

	t.wg.Wait()
}

// IsRunning reports whether the background loop is active.
func (t *TimerSet) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
