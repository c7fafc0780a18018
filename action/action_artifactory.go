package action

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// ArtifactUploader 把已落盘的产物再推给 master，worker 侧注入
type ArtifactUploader func(jobName string, jobId int, path string) error

// ArtifactoryAction 收集 step 产物到 run 的 artifactory 目录。
// 路径相对 workdir，支持逗号分隔多个。
type ArtifactoryAction struct {
	name  string
	paths []string
	ctx   context.Context
	output *output.Output
}

func NewArtifactoryAction(step model.Step, ctx context.Context, output *output.Output) *ArtifactoryAction {
	var paths []string
	for _, p := range strings.Split(step.With["path"], ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return &ArtifactoryAction{
		name:   step.With["name"],
		paths:  paths,
		ctx:    ctx,
		output: output,
	}
}

func (a *ArtifactoryAction) Pre() error {
	if len(a.paths) == 0 {
		return errors.New("artifact-upload step needs with.path")
	}
	return nil
}

func (a *ArtifactoryAction) Hook() (*model.ActionResult, error) {
	workdir, err := stackString(a.ctx, "workdir")
	if err != nil {
		return nil, err
	}
	jobName, err := stackString(a.ctx, "name")
	if err != nil {
		return nil, err
	}
	jobId, err := stackString(a.ctx, "id")
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(jobId)
	if err != nil {
		return nil, err
	}

	destDir := job.ArtifactoryDir(jobName, id)
	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		return nil, err
	}

	var uploader ArtifactUploader
	if v := a.ctx.Value(STACK).(map[string]interface{})["artifactUploader"]; v != nil {
		uploader, _ = v.(ArtifactUploader)
	}

	result := &model.ActionResult{}
	for _, p := range a.paths {
		source := p
		if !filepath.IsAbs(source) {
			source = filepath.Join(workdir, p)
		}
		matches, err := filepath.Glob(source)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			a.output.WriteLine("no artifact matched " + p)
			return nil, errors.New("artifact not found: " + p)
		}
		for _, match := range matches {
			dest := filepath.Join(destDir, filepath.Base(match))
			if err := copyFile(match, dest); err != nil {
				return nil, err
			}
			a.output.WriteLine("collected artifact " + filepath.Base(match))
			if uploader != nil {
				if err := uploader(jobName, id, dest); err != nil {
					logger.Errorf("artifact upload failed for %s: %v", dest, err)
					return nil, err
				}
			}
			name := a.name
			if name == "" {
				name = filepath.Base(match)
			}
			result.Artifactorys = append(result.Artifactorys, model.Artifactory{
				Name: name,
				Url:  dest,
			})
		}
	}
	return result, nil
}

func (a *ArtifactoryAction) Post() error {
	return nil
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
