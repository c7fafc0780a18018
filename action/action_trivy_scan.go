package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// TrivyScanAction 文件系统漏洞扫描，产出 SARIF 报告
type TrivyScanAction struct {
	scanType     string
	severity     string
	ignoreUnfixed bool
	format       string
	outputFile   string
	reportPath   string
	ctx          context.Context
	output       *output.Output
}

func NewTrivyScanAction(step model.Step, ctx context.Context, output *output.Output) *TrivyScanAction {
	return &TrivyScanAction{
		scanType:      step.With["scan-type"],
		severity:      step.With["severity"],
		ignoreUnfixed: step.With["ignore-unfixed"] == "true",
		format:        step.With["format"],
		outputFile:    step.With["output"],
		ctx:           ctx,
		output:        output,
	}
}

func (a *TrivyScanAction) Pre() error {
	if _, err := exec.LookPath("trivy"); err != nil {
		return errors.New("trivy binary not found on this node")
	}
	if a.scanType == "" {
		a.scanType = "fs"
	}
	if a.format == "" {
		a.format = "sarif"
	}
	if a.outputFile == "" {
		a.outputFile = "trivy-results" + consts.SarifSuffix
	}
	return nil
}

func (a *TrivyScanAction) Hook() (*model.ActionResult, error) {
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
	a.reportPath = filepath.Join(destDir, filepath.Base(a.outputFile))

	args := []string{"trivy", a.scanType,
		"--format", a.format,
		"--output", a.reportPath,
	}
	if a.severity != "" {
		args = append(args, "--severity", a.severity)
	}
	if a.ignoreUnfixed {
		args = append(args, "--ignore-unfixed")
	}
	args = append(args, ".")

	if _, err := runCommand(a.ctx, a.output, workdir, nil, args...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(a.reportPath)
	if err != nil {
		return nil, err
	}
	findings := CountTrivyFindings(a.format, data)
	a.output.WriteLine(fmt.Sprintf("trivy reported %d findings at severity %s", findings, a.severity))

	result := consts.ScanPassed.Result
	if findings > 0 {
		result = consts.ScanFailed.Result
	}
	logger.Infof("trivy scan finished, job %s(%d), findings: %d", jobName, id, findings)

	return &model.ActionResult{
		Reports: []model.Report{
			{
				Id:      id,
				Name:    consts.FilesystemVulnerabilityReport.Name,
				Url:     a.reportPath,
				Tool:    consts.FilesystemVulnerabilityReport.Tool,
				Type:    2,
				Content: result,
			},
		},
	}, nil
}

func (a *TrivyScanAction) Post() error {
	return nil
}

// CountTrivyFindings 从 trivy 报告里数 findings。sarif 数 results，
// json 数每个目标下的漏洞条目。
func CountTrivyFindings(format string, data []byte) int {
	switch format {
	case "sarif":
		return int(gjson.GetBytes(data, "runs.0.results.#").Int())
	case "json":
		count := 0
		gjson.GetBytes(data, "Results").ForEach(func(_, result gjson.Result) bool {
			count += int(result.Get("Vulnerabilities.#").Int())
			return true
		})
		return count
	default:
		return 0
	}
}
