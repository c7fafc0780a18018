package engine

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/consts"
	jober "github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
	"github.com/warden-shared/warden-engine/schema"
	"github.com/warden-shared/warden-engine/utils"
)

type Engine interface {
	CreateJob(name string, yaml string) error
	SaveJobParams(name string, params map[string]string) error
	DeleteJob(name string) error
	UpdateJob(name, newName, jobYaml string) error
	GetJob(name string) (*model.Job, error)
	GetJobs(keyword string, page, size int) (*model.JobPage, error)
	GetCodeInfo(name string, historyId int) (string, error)
	ExecuteJob(name string) (*model.JobDetail, error)
	ReExecuteJob(name string, id int) error
	LoadSchedules() error
	GetSchedules() []ScheduleEntry
	GetJobHistory(name string, id int) (*model.JobDetail, error)
	GetJobHistorys(name string, page, size int) (*model.JobDetailPage, error)
	DeleteJobHistory(name string, id int) error
	CreateJobDetail(name string, triggerMode string) (*model.JobDetail, error)
	ExecuteJobDetail(name string, id int, triggerMode string) error
	RegisterStatusChangeHook(hook func(message model.StatusChangeMessage))
	GetJobHistoryLog(name string, id int) (*model.JobLog, error)
	GetJobHistoryStageLog(name string, id int, stageName string, start int) (*model.JobStageLog, error)
	GetJobHistoryStepLog(name string, id int, stageName string, stepName string) (*output.Step, error)
	TerminalJob(name string, id int) error
	GetCurrentJobStatus(jobName string, jobID int) (model.Status, error)
	IsValidWorker(w string) bool
	GetWorkRootPath() string
}

// ScheduleEntry 对外暴露的调度条目视图
type ScheduleEntry struct {
	JobName string
	Exprs   []string
	NextRun string
}

type Role int

const (
	RoleMaster Role = iota
	RoleWorker
)

type engine struct {
	role   Role
	master *masterEngine
	worker *workerEngine
}

// NewMasterEngine master 同时内置一个连到本机的 worker，
// 单机部署不需要另起 worker 进程
func NewMasterEngine(cfg *config.Config) (Engine, error) {
	logger.Init().ToStdoutAndFile().SetLevel(readLogLevelFromEnv())
	e := &engine{}
	e.role = RoleMaster

	var err error
	e.master, err = newMasterEngine(fmt.Sprintf("0.0.0.0:%d", cfg.ListenPort), cfg)
	if err != nil {
		return nil, err
	}

	e.worker, err = newWorkerEngine(fmt.Sprintf("127.0.0.1:%d", cfg.ListenPort), cfg)
	if err != nil {
		return nil, err
	}

	return e, nil
}

func NewWorkerEngine(cfg *config.Config) (Engine, error) {
	logger.Init().ToStdoutAndFile().SetLevel(readLogLevelFromEnv())
	if cfg.MasterAddress == "" {
		return nil, fmt.Errorf("worker needs a master address")
	}
	e := &engine{}
	e.role = RoleWorker
	var err error
	e.worker, err = newWorkerEngine(cfg.MasterAddress, cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *engine) CreateJob(name string, yaml string) error {
	if err := validatePipeline(yaml); err != nil {
		return err
	}
	if err := jober.SaveJob(name, yaml); err != nil {
		return err
	}
	if e.role == RoleMaster {
		return e.master.refreshSchedule(name)
	}
	return nil
}

// validatePipeline 不合法的 yaml 不落盘
func validatePipeline(yaml string) error {
	validator, err := schema.NewValidator()
	if err != nil {
		return err
	}
	return validator.ValidateYaml(yaml)
}

func (e *engine) SaveJobParams(name string, params map[string]string) error {
	return jober.SaveJobParams(name, params)
}

func (e *engine) DeleteJob(name string) error {
	if e.role == RoleMaster {
		e.master.scheduler.Remove(name)
	}
	return jober.DeleteJob(name)
}

func (e *engine) UpdateJob(name, newName, jobYaml string) error {
	if err := validatePipeline(jobYaml); err != nil {
		return err
	}
	if err := jober.UpdateJob(name, newName, jobYaml); err != nil {
		return err
	}
	if e.role == RoleMaster {
		e.master.scheduler.Remove(name)
		return e.master.refreshSchedule(newName)
	}
	return nil
}

func (e *engine) GetJob(name string) (*model.Job, error) {
	return jober.GetJobObject(name)
}

func (e *engine) GetJobs(keyword string, page, size int) (*model.JobPage, error) {
	return jober.JobList(keyword, page, size)
}

func (e *engine) GetCodeInfo(name string, historyId int) (string, error) {
	jobDetail, err := jober.GetJobDetail(name, historyId)
	if err != nil {
		return "", err
	}
	return jobDetail.CodeInfo, nil
}

// ExecuteJob 手工触发一次 run
func (e *engine) ExecuteJob(name string) (*model.JobDetail, error) {
	if e.role != RoleMaster {
		return nil, fmt.Errorf("only master can execute job")
	}
	jobDetail, err := e.CreateJobDetail(name, consts.TRIGGER_MODE_MANUAL)
	if err != nil {
		return nil, err
	}
	return jobDetail, e.master.dispatchJob(name, jobDetail.Id, consts.TRIGGER_MODE_MANUAL)
}

func (e *engine) ExecuteJobDetail(name string, id int, triggerMode string) error {
	if e.role != RoleMaster {
		return fmt.Errorf("only master can execute job detail")
	}
	return e.master.dispatchJob(name, id, triggerMode)
}

func (e *engine) ReExecuteJob(name string, id int) error {
	if e.role != RoleMaster {
		return fmt.Errorf("only master can execute job")
	}
	return e.master.dispatchJob(name, id, consts.TRIGGER_MODE_MANUAL)
}

// LoadSchedules 读全部 job 的 on.schedule 并启动调度器
func (e *engine) LoadSchedules() error {
	if e.role != RoleMaster {
		return fmt.Errorf("only master can load schedules")
	}
	return e.master.loadSchedules()
}

func (e *engine) GetSchedules() []ScheduleEntry {
	if e.role != RoleMaster {
		return nil
	}
	entries := e.master.scheduler.List()
	result := make([]ScheduleEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, ScheduleEntry{
			JobName: entry.JobName,
			Exprs:   entry.Exprs,
			NextRun: entry.NextRun.Format("2006-01-02 15:04:05 MST"),
		})
	}
	return result
}

func (e *engine) GetJobHistory(name string, id int) (*model.JobDetail, error) {
	return jober.GetJobDetail(name, id)
}

func (e *engine) DeleteJobHistory(name string, id int) error {
	return jober.DeleteJobDetail(name, id)
}

func (e *engine) CreateJobDetail(name string, triggerMode string) (*model.JobDetail, error) {
	return jober.CreateJobDetail(name, triggerMode)
}

func (e *engine) RegisterStatusChangeHook(hook func(message model.StatusChangeMessage)) {
	if e.role != RoleMaster {
		return
	}
	logger.Infof("register status change hook")
	e.master.registerStatusChangeHook(hook)
}

func (e *engine) GetJobHistorys(name string, page, size int) (*model.JobDetailPage, error) {
	return jober.JobDetailList(name, page, size)
}

func (e *engine) GetJobHistoryLog(name string, id int) (*model.JobLog, error) {
	return jober.GetJobLog(name, id)
}

func (e *engine) GetJobHistoryStageLog(name string, id int, stageName string, start int) (*model.JobStageLog, error) {
	return jober.GetJobStageLog(name, id, stageName, start)
}

func (e *engine) GetJobHistoryStepLog(name string, id int, stageName string, stepName string) (*output.Step, error) {
	return jober.GetJobStepLog(name, id, stageName, stepName)
}

func (e *engine) TerminalJob(name string, id int) error {
	if e.role != RoleMaster {
		return fmt.Errorf("only master can terminal job")
	}
	return e.master.cancelJob(name, id)
}

// GetCurrentJobStatus 获取当前任务的状态，不能获取历史任务的状态
func (e *engine) GetCurrentJobStatus(jobName string, jobID int) (model.Status, error) {
	if e.role == RoleWorker {
		return e.worker.GetJobStatus(jobName, jobID)
	}
	return e.master.getJobStatus(jobName, jobID)
}

// 校验是不是有效的 worker
func (e *engine) IsValidWorker(w string) bool {
	if e.role == RoleWorker {
		return false
	}
	return e.master.isValidWorker(w)
}

func (e *engine) GetWorkRootPath() string {
	return utils.DefaultConfigDir()
}

func readLogLevelFromEnv() logrus.Level {
	levelStr := os.Getenv("WARDEN_LOG_LEVEL")
	if levelStr == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
