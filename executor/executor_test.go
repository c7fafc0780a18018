package executor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	jober "github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/model"
	ass "gotest.tools/v3/assert"
)

func newTestExecutor() *Executor {
	return NewExecutor(make(chan model.StatusChangeMessage, 100))
}

func singleStageJob(name string, steps ...model.Step) *model.Job {
	return &model.Job{
		Version: "1.0",
		Name:    name,
		Stages: map[string]model.Stage{
			"run": {Steps: steps},
		},
	}
}

func Test_Execute_Success(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := singleStageJob("echo-job", model.Step{Name: "say hello", Run: "echo hello"})
	err := e.Execute(1, job, "manual")
	ass.NilError(t, err)

	detail, err := jober.GetJobDetail("echo-job", 1)
	ass.NilError(t, err)
	assert.Equal(t, model.STATUS_SUCCESS, detail.Status)
	assert.Equal(t, "manual", detail.TriggerMode)
	assert.Equal(t, model.STATUS_SUCCESS, detail.Stages[0].Stage.Steps[0].Status)

	msg := <-e.StatusChan
	assert.Equal(t, "echo-job", msg.JobName)
	assert.Equal(t, model.STATUS_SUCCESS, msg.Status)
}

func Test_Execute_FailingStep(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := singleStageJob("fail-job",
		model.Step{Name: "boom", Run: "false"},
		model.Step{Name: "never runs", Run: "echo skipped"},
	)
	err := e.Execute(1, job, "schedule")
	assert.Error(t, err)

	detail, err := jober.GetJobDetail("fail-job", 1)
	ass.NilError(t, err)
	assert.Equal(t, model.STATUS_FAIL, detail.Status)
	assert.Equal(t, model.STATUS_FAIL, detail.Stages[0].Stage.Steps[0].Status)
	assert.Equal(t, model.STATUS_NOTRUN, detail.Stages[0].Stage.Steps[1].Status)
}

func Test_Execute_ContinueOnError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := singleStageJob("tolerant-job",
		model.Step{Name: "flaky scanner", Run: "false", ContinueOnError: true},
		model.Step{Name: "still runs", Run: "echo fine"},
	)
	err := e.Execute(1, job, "manual")
	ass.NilError(t, err)

	detail, err := jober.GetJobDetail("tolerant-job", 1)
	ass.NilError(t, err)
	assert.Equal(t, model.STATUS_SUCCESS, detail.Status)
	assert.Equal(t, model.STATUS_FAIL, detail.Stages[0].Stage.Steps[0].Status)
	assert.Equal(t, model.STATUS_SUCCESS, detail.Stages[0].Stage.Steps[1].Status)
}

func Test_Execute_AlwaysRunAfterFailure(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := singleStageJob("salvage-job",
		model.Step{Name: "boom", Run: "false"},
		model.Step{Name: "keep report", Run: "echo saved", AlwaysRun: true},
		model.Step{Name: "regular step", Run: "echo nope"},
	)
	err := e.Execute(1, job, "schedule")
	assert.Error(t, err)

	detail, err := jober.GetJobDetail("salvage-job", 1)
	ass.NilError(t, err)
	assert.Equal(t, model.STATUS_FAIL, detail.Status)
	steps := detail.Stages[0].Stage.Steps
	assert.Equal(t, model.STATUS_FAIL, steps[0].Status)
	assert.Equal(t, model.STATUS_SUCCESS, steps[1].Status)
	assert.Equal(t, model.STATUS_NOTRUN, steps[2].Status)
}

// 失败之后后续 stage 里的 always-run step 也要执行
func Test_Execute_AlwaysRunInLaterStage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := &model.Job{
		Version: "1.0",
		Name:    "late-salvage",
		Stages: map[string]model.Stage{
			"scan": {
				Steps: []model.Step{{Name: "boom", Run: "false"}},
			},
			"upload": {
				Needs: []string{"scan"},
				Steps: []model.Step{{Name: "keep report", Run: "echo saved", AlwaysRun: true}},
			},
		},
	}
	err := e.Execute(1, job, "schedule")
	assert.Error(t, err)

	detail, err := jober.GetJobDetail("late-salvage", 1)
	ass.NilError(t, err)
	assert.Equal(t, model.STATUS_FAIL, detail.Stages[0].Status)
	assert.Equal(t, model.STATUS_SUCCESS, detail.Stages[1].Stage.Steps[0].Status)
}

func Test_Execute_StageOrder(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := &model.Job{
		Version: "1.0",
		Name:    "ordered",
		Stages: map[string]model.Stage{
			"build": {
				Needs: []string{"checkout"},
				Steps: []model.Step{{Name: "build", Run: "echo build"}},
			},
			"checkout": {
				Steps: []model.Step{{Name: "checkout", Run: "echo checkout"}},
			},
		},
	}
	ass.NilError(t, e.Execute(1, job, "manual"))

	detail, err := jober.GetJobDetail("ordered", 1)
	ass.NilError(t, err)
	assert.Equal(t, "checkout", detail.Stages[0].Name)
	assert.Equal(t, "build", detail.Stages[1].Name)
}

func Test_Execute_SecretMasking(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FAKE_TOKEN", "super-secret-value")
	e := newTestExecutor()

	job := singleStageJob("leaky-job",
		model.Step{Name: "leak it", Run: "echo token is $FAKE_TOKEN", Secrets: []string{"FAKE_TOKEN"}},
	)
	ass.NilError(t, e.Execute(1, job, "manual"))

	logString, err := jober.GetJobLogString("leaky-job", 1)
	ass.NilError(t, err)
	assert.False(t, strings.Contains(logString, "super-secret-value"), "secret value leaked into run log")
	assert.Contains(t, logString, "***")
}

func Test_Execute_CycleFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := &model.Job{
		Name: "cycle",
		Stages: map[string]model.Stage{
			"a": {Needs: []string{"b"}, Steps: []model.Step{{Run: "true"}}},
			"b": {Needs: []string{"a"}, Steps: []model.Step{{Run: "true"}}},
		},
	}
	err := e.Execute(1, job, "manual")
	assert.Error(t, err)
}

// 主动取消的 run 记为 stop，不算失败
func Test_Execute_CancelStopsRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := singleStageJob("stoppable",
		model.Step{Name: "long wait", Run: "sleep 30"},
		model.Step{Name: "never runs", Run: "echo nope"},
	)

	done := make(chan error, 1)
	go func() { done <- e.Execute(1, job, "manual") }()

	// 等 run 真正跑起来再取消
	for i := 0; i < 200; i++ {
		if status, _ := e.GetJobStatus("stoppable", 1); status == model.STATUS_RUNNING {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	ass.NilError(t, e.Cancel("stoppable", 1))

	err := <-done
	assert.Error(t, err)

	detail, derr := jober.GetJobDetail("stoppable", 1)
	ass.NilError(t, derr)
	assert.Equal(t, model.STATUS_STOP, detail.Status)
	assert.NotEmpty(t, detail.Error)
	assert.Equal(t, model.STATUS_NOTRUN, detail.Stages[0].Stage.Steps[1].Status)
}

// 兜底计时器上限要跟着 job 声明的超时走，不能掐掉周回归
func Test_StepWatchdogLimit(t *testing.T) {
	assert.Equal(t, 30*time.Minute, stepWatchdogLimit(10*time.Minute))
	assert.Equal(t, 30*time.Minute, stepWatchdogLimit(0))
	assert.Equal(t, 24*time.Hour, stepWatchdogLimit(24*time.Hour))
}

func Test_StepTimerIsTimeout(t *testing.T) {
	timer := newStepTimer(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, timer.isTimeout())
	assert.False(t, newStepTimer(time.Hour).isTimeout())
}

func Test_GetJobStatus_NotFound(t *testing.T) {
	e := newTestExecutor()
	_, err := e.GetJobStatus("ghost", 1)
	assert.Error(t, err)
}

func Test_UnknownAction(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := newTestExecutor()

	job := singleStageJob("mystery", model.Step{Name: "mystery step", Uses: "who-knows@v1"})
	// handler 为 nil 时按 no-op 处理，不让整个 run 挂掉
	err := e.Execute(1, job, "manual")
	ass.NilError(t, err)
}
