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
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// BanditAction 安装指定版本的 tox 并跑 security-lint 环境，产出文本报告
type BanditAction struct {
	toxVersion string
	toxEnv     string
	reportFile string
	reportPath string
	ctx        context.Context
	output     *output.Output
}

func NewBanditAction(step model.Step, ctx context.Context, output *output.Output) *BanditAction {
	return &BanditAction{
		toxVersion: step.With["tox-version"],
		toxEnv:     step.With["tox-env"],
		reportFile: step.With["report"],
		ctx:        ctx,
		output:     output,
	}
}

func (a *BanditAction) Pre() error {
	if _, err := exec.LookPath("pip"); err != nil {
		return errors.New("pip not found on this node")
	}
	if a.toxEnv == "" {
		a.toxEnv = "bandit-scan"
	}
	if a.reportFile == "" {
		a.reportFile = ".tox/bandit-report" + consts.TxtSuffix
	}
	return nil
}

func (a *BanditAction) Hook() (*model.ActionResult, error) {
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

	toxSpec := "tox"
	if a.toxVersion != "" {
		toxSpec = "tox==" + a.toxVersion
	}
	if _, err := runCommand(a.ctx, a.output, workdir, nil, "pip", "install", toxSpec); err != nil {
		return nil, err
	}

	// bandit 的报告写到 .tox 下，扫出问题时 tox 非零退出，报告仍在
	_, scanErr := runCommand(a.ctx, a.output, workdir, nil, "tox", "-e", a.toxEnv)

	source := filepath.Join(workdir, a.reportFile)
	if _, err := os.Stat(source); err != nil {
		if scanErr != nil {
			return nil, scanErr
		}
		return nil, err
	}

	destDir := job.ReportDir(jobName, id)
	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		return nil, err
	}
	a.reportPath = filepath.Join(destDir, filepath.Base(source))
	if err := copyFile(source, a.reportPath); err != nil {
		return nil, err
	}

	result := &model.ActionResult{
		Reports: []model.Report{
			{
				Id:   id,
				Name: consts.SecurityLintReport.Name,
				Url:  a.reportPath,
				Tool: consts.SecurityLintReport.Tool,
				Type: 2,
			},
		},
	}
	return result, scanErr
}

func (a *BanditAction) Post() error {
	return nil
}
