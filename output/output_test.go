package output

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	ass "gotest.tools/v3/assert"
)

func newTestOutput(t *testing.T) *Output {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return New("test-job", 1)
}

func Test_MaskValue(t *testing.T) {
	o := newTestOutput(t)
	o.MaskValue("s3cr3t-token")

	o.WriteLine("authenticating with s3cr3t-token now")
	o.WriteCommandLine("snyk auth s3cr3t-token")

	content := o.Content()
	assert.NotContains(t, content, "s3cr3t-token")
	assert.Contains(t, content, "***")
	o.Done()
}

func Test_MaskValue_EmptyIgnored(t *testing.T) {
	o := newTestOutput(t)
	o.MaskValue("")

	o.WriteLine("nothing to hide")
	assert.Contains(t, o.Content(), "nothing to hide")
	o.Done()
}

func Test_StageAndStepMarkers(t *testing.T) {
	o := newTestOutput(t)
	o.NewStage("checkout")
	o.NewStep("checkout repository")
	o.WriteLine("cloning")
	o.NewStage("scan")
	o.NewStep("run trivy")
	o.WriteLine("scanning")
	o.Done()

	lines := strings.Split(o.Content(), "\n")
	log := parseLogLines(lines)
	assert.Len(t, log.Stages, 2)
	assert.Equal(t, "checkout", log.Stages[0].Name)
	assert.Equal(t, "scan", log.Stages[1].Name)

	steps := ParseStageSteps(&log.Stages[1])
	ass.Equal(t, 1, len(steps))
	assert.Equal(t, "run trivy", steps[0].Name)
	assert.NotEmpty(t, steps[0].Lines)
}

func Test_NewContent(t *testing.T) {
	o := newTestOutput(t)
	o.WriteLine("first")
	_ = o.Content()

	assert.Equal(t, "", o.NewContent())
	o.WriteLine("second")
	assert.Contains(t, o.NewContent(), "second")
	o.Done()
}

// 写入方和刷盘/读取方并发访问 buffer，-race 下必须干净
func Test_ConcurrentWriteAndRead(t *testing.T) {
	o := newTestOutput(t)
	o.MaskValue("hidden")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				o.WriteLine(fmt.Sprintf("writer %d line %d with hidden", w, i))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = o.Content()
			_ = o.NewContent()
			_ = o.StageOutputList()
		}
	}()
	wg.Wait()
	o.Done()

	content := o.Content()
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "writer 3 line 49")
}

func Test_ParseLogFile(t *testing.T) {
	o := newTestOutput(t)
	o.NewStage("scan")
	o.NewStep("run trivy")
	o.WriteLine("found 0 issues")
	o.Done()

	log, err := ParseLogFile(o.Filename())
	ass.NilError(t, err)
	assert.Len(t, log.Stages, 1)
	assert.Equal(t, "scan", log.Stages[0].Name)
	assert.False(t, log.StartTime.IsZero())
}
