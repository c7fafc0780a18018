package action

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// GitAction 检出代码快照到 run 的 workdir
type GitAction struct {
	repository string
	branch     string
	workdir    string
	ctx        context.Context
	output     *output.Output
}

func NewGitAction(step model.Step, ctx context.Context, output *output.Output) *GitAction {
	return &GitAction{
		repository: step.With["url"],
		branch:     step.With["branch"],
		ctx:        ctx,
		output:     output,
	}
}

func (a *GitAction) Pre() error {
	if a.repository == "" {
		return errors.New("git-checkout step needs with.url")
	}
	workdir, err := stackString(a.ctx, "workdir")
	if err != nil {
		return err
	}
	a.workdir = workdir
	return nil
}

func (a *GitAction) Hook() (*model.ActionResult, error) {
	branch := a.branch
	if branch == "" {
		branch = "main"
	}

	if _, err := os.Stat(a.workdir + "/.git"); err == nil {
		// workdir 里已有仓库，拉取并切到目标分支
		if _, err := runCommand(a.ctx, a.output, a.workdir, nil, "git", "fetch", "origin", branch); err != nil {
			return nil, err
		}
		if _, err := runCommand(a.ctx, a.output, a.workdir, nil, "git", "checkout", branch); err != nil {
			return nil, err
		}
		if _, err := runCommand(a.ctx, a.output, a.workdir, nil, "git", "reset", "--hard", "origin/"+branch); err != nil {
			return nil, err
		}
	} else {
		if _, err := runCommand(a.ctx, a.output, a.workdir, nil, "git", "clone", "--branch", branch, "--single-branch", a.repository, "."); err != nil {
			return nil, err
		}
	}

	commit, err := runCommand(a.ctx, a.output, a.workdir, nil, "git", "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}

	return &model.ActionResult{
		CodeInfo: a.repository + "@" + strings.TrimSpace(commit),
	}, nil
}

func (a *GitAction) Post() error {
	return nil
}
