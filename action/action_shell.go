package action

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// ShellAction 内联 run 命令
type ShellAction struct {
	command    string
	scriptFile string
	ctx        context.Context
	output     *output.Output
}

func NewShellAction(step model.Step, ctx context.Context, output *output.Output) *ShellAction {
	return &ShellAction{
		command: step.Run,
		ctx:     ctx,
		output:  output,
	}
}

func (a *ShellAction) Pre() error {
	if a.command == "" {
		return errors.New("shell step has no run command")
	}
	workdir, err := stackString(a.ctx, "workdir")
	if err != nil {
		return err
	}
	// 多行脚本写到临时文件里交给 sh 执行
	a.scriptFile = filepath.Join(workdir, ".warden-step.sh")
	return os.WriteFile(a.scriptFile, []byte(a.command), 0755)
}

func (a *ShellAction) Hook() (*model.ActionResult, error) {
	workdir, err := stackString(a.ctx, "workdir")
	if err != nil {
		return nil, err
	}

	env := secretEnv(a.ctx)
	if stack, ok := a.ctx.Value(STACK).(map[string]interface{}); ok {
		if jobEnv, ok := stack["env"].([]string); ok {
			env = append(env, jobEnv...)
		}
	}

	logger.Debugf("execute shell step in %s", workdir)
	_, err = runCommand(a.ctx, a.output, workdir, env, "sh", "-e", a.scriptFile)
	if err != nil {
		return nil, err
	}
	return &model.ActionResult{}, nil
}

func (a *ShellAction) Post() error {
	if a.scriptFile != "" {
		_ = os.Remove(a.scriptFile)
	}
	return nil
}
