package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/warden-shared/warden-engine/output"
)

// Job 一条流水线的声明，对应一个 yaml 文件
type Job struct {
	Version        string            `yaml:"version" json:"version"`
	Name           string            `yaml:"name" json:"name"`
	Trigger        *Trigger          `yaml:"on,omitempty" json:"trigger"`
	RunsOn         string            `yaml:"runs-on,omitempty" json:"runsOn"`
	TimeoutMinutes int               `yaml:"timeout-minutes,omitempty" json:"timeoutMinutes"`
	Permissions    map[string]string `yaml:"permissions,omitempty" json:"permissions"`
	Parameter      map[string]string `yaml:"parameter,omitempty" json:"parameter"`
	Stages         map[string]Stage  `yaml:"stages" json:"stages"`
}

// Trigger 触发配置：cron 调度和手动触发
type Trigger struct {
	Schedules []Schedule `yaml:"schedule,omitempty" json:"schedules"`
	Manual    bool       `yaml:"manual,omitempty" json:"manual"`
}

// Schedule 标准 5 段 cron 表达式，UTC
type Schedule struct {
	Cron string `yaml:"cron" json:"cron"`
}

type Stage struct {
	Steps []Step   `yaml:"steps" json:"steps"`
	Needs []string `yaml:"needs,omitempty" json:"needs"`
}

type StageDetail struct {
	Name      string    `yaml:"name" json:"name"`
	Stage     Stage     `yaml:"stage" json:"stage"`
	Status    Status    `yaml:"status" json:"status"`
	StartTime time.Time `yaml:"startTime,omitempty" json:"startTime"`
	Duration  int64     `yaml:"duration,omitempty" json:"duration"`
}

// JobDetail 一次 run 的记录
type JobDetail struct {
	Id int `yaml:"id" json:"id"`
	Job
	ActionResult
	Output      *output.Output `yaml:"-" json:"-"`
	Status      Status         `yaml:"status" json:"status"`
	TriggerMode string         `yaml:"triggerMode,omitempty" json:"triggerMode"`
	StartTime   time.Time      `yaml:"startTime,omitempty" json:"startTime"`
	Duration    int64          `yaml:"duration,omitempty" json:"duration"`
	Stages      []StageDetail  `yaml:"stages" json:"stages"`
	Error       string         `yaml:"error,omitempty" json:"error"`
}

// JobVo job 列表里的一行，带上最近一次 run 的信息
type JobVo struct {
	Version     string    `json:"version"`
	Name        string    `json:"name"`
	RunsOn      string    `json:"runsOn"`
	CreateTime  time.Time `json:"createTime"`
	StartTime   time.Time `json:"startTime"`
	Duration    int64     `json:"duration"`
	Status      Status    `json:"status"`
	TriggerMode string    `json:"triggerMode"`
	RunDetailId int       `json:"runDetailId"`
	Error       string    `json:"error"`
}

type JobPage struct {
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Total    int     `json:"total"`
	Data     []JobVo `json:"data"`
}

type JobDetailPage struct {
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Total    int         `json:"total"`
	Data     []JobDetail `json:"data"`
}

type JobLog struct {
	StartTime time.Time `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Content   string    `json:"content"`
	LastLine  int       `json:"lastLine"`
}

type JobStageLog struct {
	StartTime time.Time `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Content   string    `json:"content"`
	LastLine  int       `json:"lastLine"`
	End       bool      `json:"end"`
}

// StageSort 按 needs 对 stage 做拓扑排序，返回执行顺序
func (job *Job) StageSort() ([]StageDetail, error) {
	indegree := make(map[string]int, len(job.Stages))
	for name := range job.Stages {
		indegree[name] = 0
	}
	for name, stage := range job.Stages {
		for _, need := range stage.Needs {
			if _, ok := job.Stages[need]; !ok {
				return nil, fmt.Errorf("stage %s needs unknown stage %s", name, need)
			}
			indegree[name]++
		}
	}

	sorted := make([]StageDetail, 0, len(job.Stages))
	for len(indegree) > 0 {
		// 同一批可执行的 stage 按名称排序，保证顺序稳定
		var ready []string
		for name, d := range indegree {
			if d == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("stage needs form a cycle")
		}
		sort.Strings(ready)
		for _, name := range ready {
			sorted = append(sorted, NewStageDetail(name, job.Stages[name]))
			delete(indegree, name)
			for other, stage := range job.Stages {
				for _, need := range stage.Needs {
					if need == name {
						indegree[other]--
					}
				}
			}
		}
	}
	return sorted, nil
}

func NewStageDetail(name string, stage Stage) StageDetail {
	return StageDetail{
		Name:   name,
		Stage:  stage,
		Status: STATUS_NOTRUN,
	}
}

// JobVoTimeDecrement job 列表按创建时间倒序
type JobVoTimeDecrement []JobVo

func (j JobVoTimeDecrement) Len() int           { return len(j) }
func (j JobVoTimeDecrement) Less(a, b int) bool { return j[a].CreateTime.After(j[b].CreateTime) }
func (j JobVoTimeDecrement) Swap(a, b int)      { j[a], j[b] = j[b], j[a] }

// JobDetailDecrement run 列表按 id 倒序
type JobDetailDecrement []JobDetail

func (j JobDetailDecrement) Len() int           { return len(j) }
func (j JobDetailDecrement) Less(a, b int) bool { return j[a].Id > j[b].Id }
func (j JobDetailDecrement) Swap(a, b int)      { j[a], j[b] = j[b], j[a] }
