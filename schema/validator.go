package schema

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/trigger"
	"gopkg.in/yaml.v3"
)

//go:embed pipeline.schema.json
var pipelineSchemaDoc string

// pinned action reference: name@vN，不允许漂移引用
var pinnedUsesPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*@v\d+$`)

// step kinds whose output must survive an upstream failure
var uploadActions = map[string]bool{
	"artifact-upload": true,
	"sarif-upload":    true,
}

var scanActions = map[string]bool{
	"trivy-scan":  true,
	"trivy-sbom":  true,
	"bandit-scan": true,
	"snyk-scan":   true,
}

// Validator 校验流水线文件：先过 jsonschema，再做语义检查
type Validator struct {
	pipelineSchema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schema, err := jsonschema.CompileString("pipeline.schema.json", pipelineSchemaDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pipeline schema: %w", err)
	}
	return &Validator{pipelineSchema: schema}, nil
}

// ValidateYaml 校验一份流水线 yaml，返回所有违规项
func (v *Validator) ValidateYaml(yamlString string) error {
	var doc interface{}
	if err := yaml.Unmarshal([]byte(yamlString), &doc); err != nil {
		return fmt.Errorf("pipeline is not valid yaml: %w", err)
	}
	if err := v.pipelineSchema.Validate(doc); err != nil {
		return err
	}
	var job model.Job
	if err := yaml.Unmarshal([]byte(yamlString), &job); err != nil {
		return err
	}
	return v.ValidateJob(&job)
}

// ValidateJob 语义检查
func (v *Validator) ValidateJob(job *model.Job) error {
	var problems []string

	if job.Trigger != nil {
		for _, schedule := range job.Trigger.Schedules {
			if _, err := trigger.Parse(schedule.Cron); err != nil {
				problems = append(problems, fmt.Sprintf("schedule %q is not a valid 5-field cron expression: %s", schedule.Cron, err))
			}
		}
	}

	if job.TimeoutMinutes < 0 {
		problems = append(problems, "timeout-minutes must be positive")
	}

	for _, stageDetail := range sortedStages(job) {
		stage := stageDetail.Stage
		seenScan := false
		for _, step := range stage.Steps {
			if step.Uses == "" {
				if step.Run == "" {
					problems = append(problems, fmt.Sprintf("step %q has neither uses nor run", step.Name))
				}
				continue
			}
			if !pinnedUsesPattern.MatchString(step.Uses) {
				problems = append(problems, fmt.Sprintf("step %q uses unpinned action reference %q", step.Name, step.Uses))
				continue
			}
			base := usesBase(step.Uses)
			if scanActions[base] {
				seenScan = true
			}
			if uploadActions[base] && seenScan && !step.AlwaysRun {
				problems = append(problems, fmt.Sprintf("upload step %q after a scan step must set always-run", step.Name))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("pipeline %s invalid:\n  - %s", job.Name, strings.Join(problems, "\n  - "))
	}
	return nil
}

// CheckSecretsDeclared step 引用的 secret 名字必须在允许清单里。
// 值是否会被打出来没法从配置层面验证，只能在 output 打码。
func CheckSecretsDeclared(job *model.Job, allowed []string) error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	var missing []string
	for _, stage := range job.Stages {
		for _, step := range stage.Steps {
			for _, secret := range step.Secrets {
				if !allowedSet[secret] {
					missing = append(missing, secret)
				}
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline %s references undeclared secrets: %s", job.Name, strings.Join(missing, ", "))
	}
	return nil
}

// CheckTimeoutBudget 周级别调度的 job 整包跑回归，必须声明 timeout-minutes
// 且大于配置的预期套件时长，否则套件还没跑完 run 就被默认超时掐掉。
// 日级及更频繁的调度不受此约束。
func CheckTimeoutBudget(job *model.Job, expectedSuiteMinutes int) error {
	if expectedSuiteMinutes <= 0 {
		return nil
	}
	if job.Trigger == nil || len(job.Trigger.Schedules) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, schedule := range job.Trigger.Schedules {
		first, err := trigger.NextAfter(schedule.Cron, now)
		if err != nil {
			return err
		}
		second, err := trigger.NextAfter(schedule.Cron, first)
		if err != nil {
			return err
		}
		if second.Sub(first) < 6*24*time.Hour {
			return nil
		}
	}
	if job.TimeoutMinutes <= 0 {
		return fmt.Errorf("pipeline %s: weekly or rarer schedules must declare timeout-minutes, the expected suite duration is %d minutes",
			job.Name, expectedSuiteMinutes)
	}
	if job.TimeoutMinutes <= expectedSuiteMinutes {
		return fmt.Errorf("pipeline %s: timeout-minutes %d does not cover the expected suite duration of %d minutes",
			job.Name, job.TimeoutMinutes, expectedSuiteMinutes)
	}
	return nil
}

func sortedStages(job *model.Job) []model.StageDetail {
	stages, err := job.StageSort()
	if err != nil {
		// 循环依赖由 StageSort 的调用方报，这里按原始顺序继续检查
		stages = make([]model.StageDetail, 0, len(job.Stages))
		for name, stage := range job.Stages {
			stages = append(stages, model.NewStageDetail(name, stage))
		}
	}
	return stages
}

func usesBase(uses string) string {
	if at := strings.LastIndex(uses, "@"); at >= 0 {
		return uses[:at]
	}
	return uses
}
