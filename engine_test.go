package engine

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	jober "github.com/warden-shared/warden-engine/job"
	ass "gotest.tools/v3/assert"
)

func Test_readLogLevelFromEnv(t *testing.T) {
	t.Setenv("WARDEN_LOG_LEVEL", "")
	assert.Equal(t, logrus.InfoLevel, readLogLevelFromEnv())

	t.Setenv("WARDEN_LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, readLogLevelFromEnv())

	t.Setenv("WARDEN_LOG_LEVEL", "not-a-level")
	assert.Equal(t, logrus.InfoLevel, readLogLevelFromEnv())
}

func Test_WorkerRoleGuards(t *testing.T) {
	e := &engine{role: RoleWorker}

	_, err := e.ExecuteJob("trivy-scan")
	assert.Error(t, err)

	assert.Error(t, e.ExecuteJobDetail("trivy-scan", 1, "manual"))
	assert.Error(t, e.ReExecuteJob("trivy-scan", 1))
	assert.Error(t, e.LoadSchedules())
	assert.Error(t, e.TerminalJob("trivy-scan", 1))
	assert.Nil(t, e.GetSchedules())
	assert.False(t, e.IsValidWorker("worker-1@10.0.0.2:9706"))
}

// 不过校验的流水线不落盘
func Test_CreateJob_ValidatesPipeline(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := &engine{role: RoleWorker}

	unpinned := `
version: 1.0
name: sloppy
stages:
  scan:
    steps:
      - name: scan
        uses: trivy-scan
`
	err := e.CreateJob("sloppy", unpinned)
	assert.ErrorContains(t, err, "unpinned")
	_, err = jober.GetJob("sloppy")
	assert.Error(t, err)

	valid := `
version: 1.0
name: nightly
stages:
  scan:
    steps:
      - name: scan
        run: "echo scan"
`
	ass.NilError(t, e.CreateJob("nightly", valid))
	_, err = jober.GetJob("nightly")
	ass.NilError(t, err)

	// 更新同样要过校验，坏 yaml 不能顶掉好的
	badCron := `
version: 1.0
name: nightly
on:
  schedule:
    - cron: "every friday"
stages:
  scan:
    steps:
      - name: scan
        run: "echo scan"
`
	assert.ErrorContains(t, e.UpdateJob("nightly", "nightly", badCron), "cron")
	saved, err := jober.GetJob("nightly")
	ass.NilError(t, err)
	assert.NotContains(t, saved, "every friday")
}

func Test_GetWorkRootPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := &engine{role: RoleMaster}
	assert.True(t, strings.HasSuffix(e.GetWorkRootPath(), ".warden"))
}

func Test_isLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:9706"))
	assert.True(t, isLoopback("localhost:9706"))
	assert.False(t, isLoopback("10.0.0.2:9706"))
}
