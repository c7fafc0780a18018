package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warden-shared/warden-engine/model"
	ass "gotest.tools/v3/assert"
)

const validPipeline = `
version: 1.0
name: trivy-scan
on:
  schedule:
    - cron: "0 18 * * 1-5"
  manual: true
permissions:
  security-events: write
stages:
  checkout:
    steps:
      - name: checkout repository
        uses: git-checkout@v1
        with:
          url: https://github.com/warden-shared/product.git
          branch: develop
  scan:
    needs:
      - checkout
    steps:
      - name: run trivy vulnerability scanner
        uses: trivy-scan@v1
        with:
          severity: CRITICAL
          ignore-unfixed: "true"
      - name: upload scan results
        uses: sarif-upload@v1
        always-run: true
        with:
          sarif-file: trivy-results.sarif
`

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	ass.NilError(t, err)
	return v
}

func Test_ValidateYaml(t *testing.T) {
	v := newTestValidator(t)
	ass.NilError(t, v.ValidateYaml(validPipeline))
}

func Test_ValidateYaml_NotYaml(t *testing.T) {
	v := newTestValidator(t)
	assert.Error(t, v.ValidateYaml("stages: ["))
}

func Test_ValidateYaml_UnknownField(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateYaml(`
version: 1.0
name: typo
branches: [main]
stages:
  run:
    steps:
      - run: "true"
`)
	assert.Error(t, err)
}

func Test_ValidateYaml_MissingStages(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateYaml(`
version: 1.0
name: empty
`)
	assert.Error(t, err)
}

func Test_ValidateJob_UnpinnedUses(t *testing.T) {
	v := newTestValidator(t)
	job := &model.Job{
		Name: "unpinned",
		Stages: map[string]model.Stage{
			"scan": {Steps: []model.Step{{Name: "scan", Uses: "trivy-scan"}}},
		},
	}
	err := v.ValidateJob(job)
	assert.ErrorContains(t, err, "unpinned")
}

func Test_ValidateJob_UploadNeedsAlwaysRun(t *testing.T) {
	v := newTestValidator(t)
	job := &model.Job{
		Name: "no-always-run",
		Stages: map[string]model.Stage{
			"scan": {Steps: []model.Step{
				{Name: "scan", Uses: "trivy-scan@v1"},
				{Name: "upload", Uses: "sarif-upload@v1"},
			}},
		},
	}
	err := v.ValidateJob(job)
	assert.ErrorContains(t, err, "always-run")
}

func Test_ValidateJob_BadCron(t *testing.T) {
	v := newTestValidator(t)
	job := &model.Job{
		Name: "bad-cron",
		Trigger: &model.Trigger{
			Schedules: []model.Schedule{{Cron: "every friday"}},
		},
		Stages: map[string]model.Stage{
			"run": {Steps: []model.Step{{Run: "true"}}},
		},
	}
	err := v.ValidateJob(job)
	assert.ErrorContains(t, err, "cron")
}

func Test_ValidateJob_StepNeedsUsesOrRun(t *testing.T) {
	v := newTestValidator(t)
	job := &model.Job{
		Name: "hollow",
		Stages: map[string]model.Stage{
			"run": {Steps: []model.Step{{Name: "does nothing"}}},
		},
	}
	err := v.ValidateJob(job)
	assert.ErrorContains(t, err, "neither uses nor run")
}

func Test_CheckSecretsDeclared(t *testing.T) {
	job := &model.Job{
		Name: "snyk-scan",
		Stages: map[string]model.Stage{
			"scan": {Steps: []model.Step{
				{Name: "scan", Uses: "snyk-scan@v1", Secrets: []string{"SNYK_TOKEN", "SNYK_API"}},
			}},
		},
	}

	ass.NilError(t, CheckSecretsDeclared(job, []string{"SNYK_TOKEN", "SNYK_API"}))

	err := CheckSecretsDeclared(job, []string{"SNYK_TOKEN"})
	assert.ErrorContains(t, err, "SNYK_API")
}

func Test_CheckTimeoutBudget(t *testing.T) {
	weekly := &model.Job{
		Name:           "weekly-test",
		TimeoutMinutes: 600,
		Trigger: &model.Trigger{
			Schedules: []model.Schedule{{Cron: "0 0 * * 0"}},
		},
		Stages: map[string]model.Stage{
			"run": {Steps: []model.Step{{Run: "tox -e weekly-regression"}}},
		},
	}

	// 600 分钟盖不住 720 分钟的套件
	err := CheckTimeoutBudget(weekly, 720)
	assert.ErrorContains(t, err, "timeout-minutes")

	weekly.TimeoutMinutes = 1440
	ass.NilError(t, CheckTimeoutBudget(weekly, 720))

	// 周调度不声明 timeout-minutes 会落到比套件还短的默认超时上，必须显式声明
	weekly.TimeoutMinutes = 0
	err = CheckTimeoutBudget(weekly, 720)
	assert.ErrorContains(t, err, "must declare timeout-minutes")

	// 工作日调度不受周回归预算约束
	daily := &model.Job{
		Name:           "trivy-scan",
		TimeoutMinutes: 120,
		Trigger: &model.Trigger{
			Schedules: []model.Schedule{{Cron: "0 18 * * 1-5"}},
		},
	}
	ass.NilError(t, CheckTimeoutBudget(daily, 720))
	daily.TimeoutMinutes = 0
	ass.NilError(t, CheckTimeoutBudget(daily, 720))

	// 没有调度的 job 不受约束
	ass.NilError(t, CheckTimeoutBudget(&model.Job{Name: "no-timeout"}, 720))
}

func Test_usesBase(t *testing.T) {
	assert.Equal(t, "trivy-scan", usesBase("trivy-scan@v1"))
	assert.Equal(t, "shell", usesBase("shell"))
}
