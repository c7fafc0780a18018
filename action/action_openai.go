package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	openai "github.com/sashabaranov/go-openai"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

const defaultSummaryModel = openai.GPT3Dot5Turbo

// AiSummaryAction 把本次 run 收集到的扫描报告喂给模型，生成一段
// 给值班同学看的摘要。失败只记日志，不影响 run 结果。
type AiSummaryAction struct {
	modelName string
	maxBytes  int
	ctx       context.Context
	output    *output.Output
}

func NewAiSummaryAction(step model.Step, ctx context.Context, output *output.Output) *AiSummaryAction {
	maxBytes := 16 * 1024
	if v := step.With["max-report-bytes"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxBytes = n
		}
	}
	return &AiSummaryAction{
		modelName: step.With["model"],
		maxBytes:  maxBytes,
		ctx:       ctx,
		output:    output,
	}
}

func (a *AiSummaryAction) Pre() error {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return errors.New("ai-summary step needs OPENAI_API_KEY in the node environment")
	}
	// step 没写 model 时用节点配置的，再不行用默认值
	if a.modelName == "" {
		a.modelName, _ = stackString(a.ctx, "openaiModel")
	}
	if a.modelName == "" {
		a.modelName = defaultSummaryModel
	}
	return nil
}

func (a *AiSummaryAction) Hook() (*model.ActionResult, error) {
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

	reportDir := job.ReportDir(jobName, id)
	entries, err := os.ReadDir(reportDir)
	if err != nil || len(entries) == 0 {
		return nil, errors.New("no reports collected yet, put ai-summary after the scan steps")
	}

	var prompt string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(reportDir, entry.Name()))
		if err != nil {
			continue
		}
		if len(data) > a.maxBytes {
			data = data[:a.maxBytes]
		}
		prompt += fmt.Sprintf("--- %s ---\n%s\n", entry.Name(), data)
	}

	client := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
	resp, err := client.CreateChatCompletion(a.ctx, openai.ChatCompletionRequest{
		Model: a.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You summarize security scan reports for an on-call engineer. Be brief, list the most severe findings first.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		logger.Errorf("ai summary failed for job %s(%d): %v", jobName, id, err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no summary")
	}

	summary := resp.Choices[0].Message.Content
	a.output.WriteLine("scan summary:")
	a.output.WriteLine(summary)

	return &model.ActionResult{
		Reports: []model.Report{
			{
				Id:      id,
				Name:    "Scan Summary",
				Type:    4,
				Content: summary,
			},
		},
	}, nil
}

func (a *AiSummaryAction) Post() error {
	return nil
}
