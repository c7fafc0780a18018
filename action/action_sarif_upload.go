package action

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// SarifUploadAction 把 SARIF 报告提交到 findings 端点，
// 让扫描结果出现在代码安全面板上。报告体 base64 后提交。
type SarifUploadAction struct {
	sarifFile string
	category  string
	ctx       context.Context
	output    *output.Output
}

func NewSarifUploadAction(step model.Step, ctx context.Context, output *output.Output) *SarifUploadAction {
	return &SarifUploadAction{
		sarifFile: step.With["sarif-file"],
		category:  step.With["category"],
		ctx:       ctx,
		output:    output,
	}
}

func (a *SarifUploadAction) Pre() error {
	if a.sarifFile == "" {
		return errors.New("sarif-upload step needs with.sarif-file")
	}
	return nil
}

func (a *SarifUploadAction) Hook() (*model.ActionResult, error) {
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

	endpoint, _ := stackString(a.ctx, "findingsEndpoint")
	if endpoint == "" {
		return nil, errors.New("no findings endpoint configured")
	}

	// 报告先到 run 的 report 目录找，再按原始路径找
	sarifPath := filepath.Join(job.ReportDir(jobName, id), filepath.Base(a.sarifFile))
	data, err := os.ReadFile(sarifPath)
	if err != nil {
		workdir, werr := stackString(a.ctx, "workdir")
		if werr != nil {
			return nil, err
		}
		sarifPath = filepath.Join(workdir, a.sarifFile)
		data, err = os.ReadFile(sarifPath)
		if err != nil {
			return nil, err
		}
	}

	tool := gjson.GetBytes(data, "runs.0.tool.driver.name").String()
	if tool == "" {
		tool = "unknown"
	}

	body := map[string]string{
		"sarif":      base64.StdEncoding.EncodeToString(data),
		"category":   a.category,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}

	request := resty.New().SetTimeout(2 * time.Minute).R().
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	// token 所在的环境变量名由节点配置下发
	tokenEnv, _ := stackString(a.ctx, "findingsTokenEnv")
	if tokenEnv == "" {
		tokenEnv = "WARDEN_FINDINGS_TOKEN"
	}
	if token := os.Getenv(tokenEnv); token != "" {
		request.SetAuthToken(token)
	}
	resp, err := request.Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("findings upload rejected: %s", resp.Status())
	}

	uploadId := gjson.GetBytes(resp.Body(), "id").String()
	logger.Infof("sarif uploaded for job %s(%d), tool %s, upload id %s", jobName, id, tool, uploadId)
	a.output.WriteLine("uploaded " + filepath.Base(sarifPath) + " to findings endpoint")

	return &model.ActionResult{
		FindingsUploads: []model.FindingsUpload{
			{
				Tool:     tool,
				UploadId: uploadId,
				Url:      endpoint,
			},
		},
	}, nil
}

func (a *SarifUploadAction) Post() error {
	return nil
}
