package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	ass "gotest.tools/v3/assert"
)

func Test_Parse(t *testing.T) {
	_, err := Parse("0 18 * * 1-5")
	ass.NilError(t, err)

	_, err = Parse("0 0 * * 0")
	ass.NilError(t, err)

	_, err = Parse("61 * * * *")
	assert.Error(t, err)

	// 6 段（带秒）不接受
	_, err = Parse("0 0 18 * * 1-5")
	assert.Error(t, err)
}

func Test_NextAfter_Weekdays(t *testing.T) {
	// 2026-01-07 是周三
	wednesday := time.Date(2026, 1, 7, 17, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 18 * * 1-5", wednesday)
	ass.NilError(t, err)
	assert.Equal(t, time.Date(2026, 1, 7, 18, 0, 0, 0, time.UTC), next)

	// 周五 18 点之后要跳过周末到下周一
	friday := time.Date(2026, 1, 9, 18, 30, 0, 0, time.UTC)
	next, err = NextAfter("0 18 * * 1-5", friday)
	ass.NilError(t, err)
	assert.Equal(t, time.Date(2026, 1, 12, 18, 0, 0, 0, time.UTC), next)
}

func Test_NextAfter_Sunday(t *testing.T) {
	saturday := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 0 * * 0", saturday)
	ass.NilError(t, err)
	assert.Equal(t, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), next)
}

func Test_SchedulerAdd(t *testing.T) {
	s := NewScheduler(func(string) {})
	s.nowFn = func() time.Time {
		return time.Date(2026, 1, 7, 17, 0, 0, 0, time.UTC)
	}

	err := s.Add("trivy-scan", []string{"0 18 * * 1-5"})
	ass.NilError(t, err)

	entries := s.List()
	assert.Len(t, entries, 1)
	assert.Equal(t, "trivy-scan", entries[0].JobName)
	assert.Equal(t, time.Date(2026, 1, 7, 18, 0, 0, 0, time.UTC), entries[0].NextRun)

	err = s.Add("broken", []string{"not a cron"})
	assert.Error(t, err)

	err = s.Add("empty", nil)
	assert.Error(t, err)
}

// 多个表达式取最近的一次触发
func Test_SchedulerAdd_MultipleExprs(t *testing.T) {
	s := NewScheduler(func(string) {})
	// 周六中午
	s.nowFn = func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	}

	err := s.Add("combined", []string{"0 18 * * 1-5", "0 0 * * 0"})
	ass.NilError(t, err)

	entries := s.List()
	assert.Equal(t, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), entries[0].NextRun)
}

func Test_SchedulerRunDue(t *testing.T) {
	fired := make(chan string, 4)
	s := NewScheduler(func(jobName string) { fired <- jobName })

	now := time.Date(2026, 1, 7, 17, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return now }

	ass.NilError(t, s.Add("trivy-scan", []string{"0 18 * * 1-5"}))
	ass.NilError(t, s.Add("weekly-test", []string{"0 0 * * 0"}))

	// 还没到点
	s.runDue()
	select {
	case name := <-fired:
		t.Fatalf("unexpected fire: %s", name)
	case <-time.After(100 * time.Millisecond):
	}

	// 周三 18:00 只触发工作日条目
	now = time.Date(2026, 1, 7, 18, 0, 0, 0, time.UTC)
	s.runDue()
	select {
	case name := <-fired:
		assert.Equal(t, "trivy-scan", name)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not fire")
	}

	// 下一次触发推进到周四
	for _, entry := range s.List() {
		if entry.JobName == "trivy-scan" {
			assert.Equal(t, time.Date(2026, 1, 8, 18, 0, 0, 0, time.UTC), entry.NextRun)
			assert.Equal(t, now, entry.LastRun)
		}
	}
}

func Test_SchedulerRemove(t *testing.T) {
	s := NewScheduler(func(string) {})
	ass.NilError(t, s.Add("gone", []string{"0 0 * * 0"}))
	s.Remove("gone")
	assert.Empty(t, s.List())
}
