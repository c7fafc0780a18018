package action

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// TrivySbomAction 生成依赖清单并提交到 dependency-submission 端点
type TrivySbomAction struct {
	format     string
	outputFile string
	sbomPath   string
	ctx        context.Context
	output     *output.Output
}

func NewTrivySbomAction(step model.Step, ctx context.Context, output *output.Output) *TrivySbomAction {
	return &TrivySbomAction{
		format:     step.With["format"],
		outputFile: step.With["output"],
		ctx:        ctx,
		output:     output,
	}
}

func (a *TrivySbomAction) Pre() error {
	if _, err := exec.LookPath("trivy"); err != nil {
		return errors.New("trivy binary not found on this node")
	}
	if a.format == "" {
		a.format = "github"
	}
	if a.outputFile == "" {
		a.outputFile = "dependency-results.sbom.json"
	}
	return nil
}

func (a *TrivySbomAction) Hook() (*model.ActionResult, error) {
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

	destDir := job.ReportDir(jobName, id)
	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		return nil, err
	}
	a.sbomPath = filepath.Join(destDir, filepath.Base(a.outputFile))

	if _, err := runCommand(a.ctx, a.output, workdir, nil,
		"trivy", "fs", "--format", a.format, "--output", a.sbomPath, "."); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(a.sbomPath)
	if err != nil {
		return nil, err
	}
	manifests := gjson.GetBytes(data, "manifests").Map()
	a.output.WriteLine(fmt.Sprintf("sbom generated with %d manifests", len(manifests)))

	result := &model.ActionResult{}

	endpoint, _ := stackString(a.ctx, "sbomEndpoint")
	if endpoint == "" {
		a.output.WriteLine("no sbom endpoint configured, keeping sbom as report only")
	} else {
		resp, err := resty.New().SetTimeout(2*time.Minute).R().
			SetHeader("Content-Type", "application/json").
			SetBody(data).
			Post(endpoint)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusBadRequest {
			return nil, fmt.Errorf("sbom submission failed: %s", resp.Status())
		}
		logger.Infof("sbom submitted for job %s(%d): %s", jobName, id, resp.Status())
		result.SbomSubmissions = append(result.SbomSubmissions, model.SbomSubmission{
			Format: a.format,
			Url:    endpoint,
		})
	}

	result.Reports = append(result.Reports, model.Report{
		Id:   id,
		Name: consts.DependencyGraphSbom.Name,
		Url:  a.sbomPath,
		Tool: consts.DependencyGraphSbom.Tool,
		Type: 2,
	})
	return result, nil
}

func (a *TrivySbomAction) Post() error {
	return nil
}
