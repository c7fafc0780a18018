package action

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// SnykAction 第三方扫描器，跑在带 snyk 标签的自管节点上。
// 需要 SNYK_TOKEN 和 SNYK_API 两个 secret，流水线里把这个 step
// 标记成 continue-on-error，扫描失败不拖垮整个 run。
type SnykAction struct {
	sarifFile string
	htmlFile  string
	sarifPath string
	htmlPath  string
	ctx       context.Context
	output    *output.Output
}

func NewSnykAction(step model.Step, ctx context.Context, output *output.Output) *SnykAction {
	return &SnykAction{
		sarifFile: step.With["sarif-output"],
		htmlFile:  step.With["html-output"],
		ctx:       ctx,
		output:    output,
	}
}

func (a *SnykAction) Pre() error {
	if _, err := exec.LookPath("snyk"); err != nil {
		return errors.New("snyk binary not found on this node")
	}
	secrets := stackSecrets(a.ctx)
	if secrets["SNYK_TOKEN"] == "" {
		return errors.New("snyk-scan step needs the SNYK_TOKEN secret")
	}
	if secrets["SNYK_API"] == "" {
		return errors.New("snyk-scan step needs the SNYK_API secret")
	}
	if a.sarifFile == "" {
		a.sarifFile = "snyk-results" + consts.SarifSuffix
	}
	if a.htmlFile == "" {
		a.htmlFile = "snyk-report" + consts.HtmlSuffix
	}
	return nil
}

func (a *SnykAction) Hook() (*model.ActionResult, error) {
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
	a.sarifPath = filepath.Join(destDir, filepath.Base(a.sarifFile))
	a.htmlPath = filepath.Join(destDir, filepath.Base(a.htmlFile))

	env := secretEnv(a.ctx)

	// snyk test 在有 findings 时非零退出，报告照样要收
	_, scanErr := runCommand(a.ctx, a.output, workdir, env,
		"snyk", "test", "--sarif-file-output="+a.sarifPath)
	if scanErr != nil {
		logger.Warnf("snyk test exited with error, job %s(%d): %v", jobName, id, scanErr)
	}

	jsonOut, err := runCommand(a.ctx, a.output, workdir, env, "snyk", "test", "--json")
	if err == nil || jsonOut != "" {
		if htmlErr := a.renderHtml(workdir, jsonOut); htmlErr != nil {
			a.output.WriteLine("snyk-to-html failed: " + htmlErr.Error())
		}
	}

	result := &model.ActionResult{}
	if _, err := os.Stat(a.sarifPath); err == nil {
		result.Reports = append(result.Reports, model.Report{
			Id:   id,
			Name: consts.ThirdPartyScanReport.Name,
			Url:  a.sarifPath,
			Tool: consts.ThirdPartyScanReport.Tool,
			Type: 2,
		})
	}
	if _, err := os.Stat(a.htmlPath); err == nil {
		result.Artifactorys = append(result.Artifactorys, model.Artifactory{
			Name: filepath.Base(a.htmlPath),
			Url:  a.htmlPath,
		})
	}
	return result, scanErr
}

func (a *SnykAction) renderHtml(workdir, jsonOut string) error {
	if _, err := exec.LookPath("snyk-to-html"); err != nil {
		return err
	}
	jsonPath := filepath.Join(workdir, ".snyk-results.json")
	if err := os.WriteFile(jsonPath, []byte(jsonOut), 0644); err != nil {
		return err
	}
	defer os.Remove(jsonPath)
	_, err := runCommand(a.ctx, a.output, workdir, nil,
		"snyk-to-html", "-i", jsonPath, "-o", a.htmlPath)
	return err
}

func (a *SnykAction) Post() error {
	return nil
}
