package job

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func Test_renameFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "jobs", "test", "test.yml")
	dst := filepath.Join(dir, "jobs", "test1", "test1.yml")

	assert.NilError(t, os.MkdirAll(filepath.Dir(src), 0755))
	assert.NilError(t, os.WriteFile(src, []byte("version: 1.0\n"), 0644))

	assert.NilError(t, renameFile(src, dst))

	_, err := os.Stat(dst)
	assert.NilError(t, err)
	_, err = os.Stat(src)
	assert.Assert(t, os.IsNotExist(err))
}

func Test_ArtifactoryAndReportDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	artifactory := ArtifactoryDir("trivy-scan", 3)
	report := ReportDir("trivy-scan", 3)

	assert.Assert(t, artifactory != report)
	assert.Assert(t, filepath.IsAbs(artifactory))
	assert.Assert(t, filepath.IsAbs(report))
}
