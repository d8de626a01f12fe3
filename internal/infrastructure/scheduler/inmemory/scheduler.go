package inmemory_scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/internal/metrics"
)

type task struct {
	timer *clock.Timer
}

// scheduler is a process-wide registry of named timers driven by an
// injectable clock.
type scheduler struct {
	clock   clock.Clock
	tasks   map[string]*task
	lock    *sync.Mutex
	stopped bool

	log func(format string, a ...interface{})
}

func NewScheduler(clk clock.Clock) ports.Scheduler {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("scheduler: %s", format)
		log.Debugf(format, a...)
	}
	return &scheduler{
		clock: clk,
		tasks: make(map[string]*task),
		lock:  &sync.Mutex{},
		log:   logFn,
	}
}

func (s *scheduler) Exists(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, ok := s.tasks[name]
	return ok
}

func (s *scheduler) Register(name string, fireAt time.Time, fn func()) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stopped {
		return false
	}
	if _, ok := s.tasks[name]; ok {
		return false
	}

	t := &task{}
	run := func() {
		if !s.remove(name, t) {
			return
		}
		s.log("firing %s", name)
		fn()
	}

	s.tasks[name] = t
	metrics.PendingTimers.Set(float64(len(s.tasks)))

	delay := fireAt.Sub(s.clock.Now())
	if delay <= 0 {
		go run()
		return true
	}
	t.timer = s.clock.AfterFunc(delay, run)
	return true
}

func (s *scheduler) Cancel(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(s.tasks, name)
	metrics.PendingTimers.Set(float64(len(s.tasks)))
	return true
}

func (s *scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for name, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(s.tasks, name)
	}
	s.stopped = true
	metrics.PendingTimers.Set(0)
}

// remove deletes the entry if it still refers to the given task, and returns
// whether it did.
func (s *scheduler) remove(name string, t *task) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if current, ok := s.tasks[name]; !ok || current != t {
		return false
	}
	delete(s.tasks, name)
	metrics.PendingTimers.Set(float64(len(s.tasks)))
	return true
}
