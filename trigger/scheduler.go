package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warden-shared/warden-engine/logger"
)

// 标准 5 段 cron，不带秒
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse 解析一条 5 段 cron 表达式
func Parse(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// NextAfter 表达式在 t 之后的下一次触发时间，UTC
func NextAfter(expr string, t time.Time) (time.Time, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(t.UTC()), nil
}

// FireFunc 调度触发时的回调，由 master engine 提供
type FireFunc func(jobName string)

// Scheduler 日历调度器。每分钟扫一遍条目，到点的 job 触发 FireFunc。
// 同一分钟内多个条目到点互不影响，各自独立触发。
type Scheduler struct {
	entries map[string]*entry
	mu      sync.RWMutex
	stopCh  chan struct{}
	fire    FireFunc
	nowFn   func() time.Time
}

type entry struct {
	jobName   string
	exprs     []string
	schedules []cron.Schedule
	lastRun   time.Time
	nextRun   time.Time
}

type Entry struct {
	JobName string
	Exprs   []string
	LastRun time.Time
	NextRun time.Time
}

func NewScheduler(fire FireFunc) *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		fire:    fire,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Add 注册一个 job 的全部 cron 表达式，重复注册会覆盖
func (s *Scheduler) Add(jobName string, exprs []string) error {
	if jobName == "" {
		return fmt.Errorf("job name is required")
	}
	if len(exprs) == 0 {
		return fmt.Errorf("job %q has no schedule", jobName)
	}

	schedules := make([]cron.Schedule, 0, len(exprs))
	for _, expr := range exprs {
		schedule, err := Parse(expr)
		if err != nil {
			return fmt.Errorf("job %q schedule %q: %w", jobName, expr, err)
		}
		schedules = append(schedules, schedule)
	}

	e := &entry{
		jobName:   jobName,
		exprs:     exprs,
		schedules: schedules,
	}
	e.nextRun = e.next(s.nowFn())

	s.mu.Lock()
	s.entries[jobName] = e
	s.mu.Unlock()
	logger.Debugf("schedule registered: job %s, next run %s", jobName, e.nextRun)
	return nil
}

// Remove 注销一个 job 的调度
func (s *Scheduler) Remove(jobName string) {
	s.mu.Lock()
	delete(s.entries, jobName)
	s.mu.Unlock()
}

// Start 启动调度循环
func (s *Scheduler) Start() {
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runDue()
			}
		}
	}()
}

// Stop 停止调度循环
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
		close(s.stopCh)
	}
}

// List 返回当前全部调度条目
func (s *Scheduler) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, Entry{
			JobName: e.jobName,
			Exprs:   e.exprs,
			LastRun: e.lastRun,
			NextRun: e.nextRun,
		})
	}
	return entries
}

func (s *Scheduler) runDue() {
	now := s.nowFn()
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !now.Before(e.nextRun) {
			due = append(due, e)
			e.lastRun = now
			e.nextRun = e.next(now)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e := e
		go func() {
			logger.Infof("schedule fired: job %s", e.jobName)
			s.fire(e.jobName)
		}()
	}
}

// next 多个表达式取最近的一次
func (e *entry) next(now time.Time) time.Time {
	var earliest time.Time
	for _, schedule := range e.schedules {
		n := schedule.Next(now)
		if earliest.IsZero() || n.Before(earliest) {
			earliest = n
		}
	}
	return earliest
}
