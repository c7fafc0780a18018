package action

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
	"github.com/warden-shared/warden-engine/utils"
)

const STACK = "stack"

// ActionHandler 一个 step 的执行器，三个阶段：Pre 校验，Hook 干活，Post 收尾
type ActionHandler interface {
	Pre() error
	Hook() (*model.ActionResult, error)
	Post() error
}

// 取 stack 里的字符串值
func stackString(ctx context.Context, key string) (string, error) {
	stack, ok := ctx.Value(STACK).(map[string]interface{})
	if !ok {
		return "", errors.New("stack not found in context")
	}
	value, ok := stack[key].(string)
	if !ok {
		return "", errors.New(key + " not found in stack")
	}
	return value, nil
}

func stackSecrets(ctx context.Context) map[string]string {
	stack, ok := ctx.Value(STACK).(map[string]interface{})
	if !ok {
		return map[string]string{}
	}
	if secrets, ok := stack["secrets"].(map[string]string); ok {
		return secrets
	}
	return map[string]string{}
}

// runCommand 在 workdir 里跑一条命令，合并 stdout/stderr 写进 run 输出。
// ctx 取消时进程会被杀掉。
func runCommand(ctx context.Context, o *output.Output, workdir string, env []string, commands ...string) (string, error) {
	c := utils.NewCommand(ctx, commands[0], commands[1:]...)
	c.Dir = workdir
	if len(env) > 0 {
		c.Env = append(os.Environ(), env...)
	}
	o.WriteCommandLine(strings.Join(commands, " "))
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf
	err := c.Run()
	out := buf.String()
	if len(out) > 0 {
		o.WriteCommandLine(out)
	}
	if err != nil {
		o.WriteLine(err.Error())
	}
	return out, err
}

// secretEnv 把 step 可见的 secret 转成 KEY=VALUE 环境变量
func secretEnv(ctx context.Context) []string {
	secrets := stackSecrets(ctx)
	env := make([]string, 0, len(secrets))
	for k, v := range secrets {
		env = append(env, k+"="+v)
	}
	return env
}
