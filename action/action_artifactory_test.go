package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/model"
	ass "gotest.tools/v3/assert"
)

func Test_ArtifactCollect(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	workdir := t.TempDir()
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "report-a.xml"), []byte("<suite/>"), 0644))
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "report-b.xml"), []byte("<suite/>"), 0644))
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "notes.txt"), []byte("skip me"), 0644))

	ctx := newStackContext(t, workdir, nil)
	step := model.Step{
		Uses: "artifact-upload@v1",
		With: map[string]string{"path": "*.xml"},
	}
	a := NewArtifactoryAction(step, ctx, newTestStepOutput(t))

	ass.NilError(t, a.Pre())
	result, err := a.Hook()
	ass.NilError(t, err)
	ass.Equal(t, 2, len(result.Artifactorys))

	destDir := job.ArtifactoryDir("trivy-scan", 1)
	_, err = os.Stat(filepath.Join(destDir, "report-a.xml"))
	ass.NilError(t, err)
	_, err = os.Stat(filepath.Join(destDir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func Test_ArtifactCollect_Uploader(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	workdir := t.TempDir()
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "bandit-report.txt"), []byte("ok"), 0644))

	var uploaded []string
	uploader := ArtifactUploader(func(jobName string, jobId int, path string) error {
		uploaded = append(uploaded, path)
		return nil
	})

	ctx := newStackContext(t, workdir, map[string]interface{}{"artifactUploader": uploader})
	step := model.Step{With: map[string]string{"path": "bandit-report.txt", "name": "bandit report"}}
	a := NewArtifactoryAction(step, ctx, newTestStepOutput(t))

	result, err := a.Hook()
	ass.NilError(t, err)
	ass.Equal(t, 1, len(uploaded))
	assert.Equal(t, "bandit report", result.Artifactorys[0].Name)
}

func Test_ArtifactCollect_NoMatch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	workdir := t.TempDir()

	ctx := newStackContext(t, workdir, nil)
	step := model.Step{With: map[string]string{"path": "missing/*.xml"}}
	a := NewArtifactoryAction(step, ctx, newTestStepOutput(t))

	_, err := a.Hook()
	assert.Error(t, err)
}

func Test_ArtifactCollect_NoPath(t *testing.T) {
	a := NewArtifactoryAction(model.Step{}, nil, nil)
	assert.Error(t, a.Pre())
}
