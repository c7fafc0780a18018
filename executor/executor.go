package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/warden-shared/warden-engine/action"
	"github.com/warden-shared/warden-engine/consts"
	jober "github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
	"github.com/warden-shared/warden-engine/utils"
)

type IExecutor interface {
	// Execute 执行任务
	Execute(id int, job *model.Job, triggerMode string) error
	Cancel(jobName string, id int) error
}

type Executor struct {
	cancelMap    map[string]func() // key: jobName/jobID, value: cancelFunc
	cancelMu     sync.Mutex
	StatusChan   chan model.StatusChangeMessage
	stepTimerMap sync.Map // key: jobName/jobID, value: stepTimer

	// 下发到 action 上下文的端点配置，master/worker 启动时注入
	FindingsEndpoint string
	FindingsTokenEnv string
	SbomEndpoint     string
	OpenAIModel      string
	ArtifactUploader action.ArtifactUploader
}

func NewExecutor(statusChan chan model.StatusChangeMessage) *Executor {
	e := &Executor{
		cancelMap:  make(map[string]func()),
		StatusChan: statusChan,
	}
	go e.handleTimerListener()
	return e
}

// Execute 执行任务。同一个 job 的并发 run 共享 workdir，
// 用文件锁串行化，调度器那边撞上正在跑的 run 时根本不会走到这里。
func (e *Executor) Execute(id int, job *model.Job, triggerMode string) error {

	// 1. 对 stages 做依赖排序
	stages, err := job.StageSort()
	jobWrapper := &model.JobDetail{
		Id:          id,
		Job:         *job,
		Status:      model.STATUS_NOTRUN,
		TriggerMode: triggerMode,
		Stages:      stages,
		ActionResult: model.ActionResult{
			Artifactorys: make([]model.Artifactory, 0),
			Reports:      make([]model.Report, 0),
		},
	}

	// 分支太多，不确定会从哪个分支 return，所以使用 defer，保证最终状态一定进 StatusChan
	defer func() {
		e.StatusChan <- model.NewStatusChangeMsg(jobWrapper.Name, jobWrapper.Id, jobWrapper.Status)
		logger.Infof("send status change message to chan, job name: %s, job id: %d, status: %d", jobWrapper.Name, jobWrapper.Id, jobWrapper.Status)
		e.stepTimerMap.Delete(utils.FormatJobToString(jobWrapper.Name, jobWrapper.Id))
	}()

	if err != nil {
		jobWrapper.Status = model.STATUS_FAIL
		jobWrapper.Error = err.Error()
		jober.SaveJobDetail(jobWrapper.Name, jobWrapper)
		return err
	}

	runLock, err := utils.LockJob(job.Name)
	if err != nil {
		jobWrapper.Status = model.STATUS_FAIL
		jobWrapper.Error = err.Error()
		jober.SaveJobDetail(jobWrapper.Name, jobWrapper)
		return err
	}
	defer utils.UnlockJob(runLock)

	// 2. 初始化执行器上下文
	env := make([]string, 0)
	env = append(env, "PIPELINE_NAME="+job.Name)
	env = append(env, "PIPELINE_ID="+strconv.Itoa(id))

	homeDir, _ := os.UserHomeDir()

	engineContext := make(map[string]interface{})
	engineContext["workdirRoot"] = path.Join(homeDir, consts.WORK_DIR_NAME, "workdir")
	workdir := path.Join(engineContext["workdirRoot"].(string), job.Name)
	engineContext["workdir"] = workdir

	if err := os.MkdirAll(workdir, os.ModePerm); err != nil {
		jobWrapper.Status = model.STATUS_FAIL
		jobWrapper.Error = err.Error()
		jober.SaveJobDetail(jobWrapper.Name, jobWrapper)
		return err
	}

	engineContext["name"] = job.Name
	engineContext["id"] = fmt.Sprintf("%d", id)
	engineContext["env"] = env

	if job.Parameter == nil {
		job.Parameter = make(map[string]string)
	}
	engineContext["parameter"] = job.Parameter
	secrets := resolveSecrets(job)
	engineContext["secrets"] = secrets
	engineContext["findingsEndpoint"] = e.FindingsEndpoint
	engineContext["findingsTokenEnv"] = e.FindingsTokenEnv
	engineContext["sbomEndpoint"] = e.SbomEndpoint
	engineContext["openaiModel"] = e.OpenAIModel
	if e.ArtifactUploader != nil {
		engineContext["artifactUploader"] = e.ArtifactUploader
	}

	timeout := time.Duration(job.TimeoutMinutes) * time.Minute
	if job.TimeoutMinutes <= 0 {
		timeout = time.Duration(consts.DEFAULT_JOB_TIMEOUT_MINUTE) * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.WithValue(context.Background(), "stack", engineContext), timeout)
	defer cancel()

	// 单 step 的兜底上限跟着 job 的超时走，
	// 长 run（周回归）声明的 timeout-minutes 不会被兜底计时器掐掉
	stepLimit := stepWatchdogLimit(timeout)

	// 将取消 hook 记录到内存中，用于中断程序
	jobKey := utils.FormatJobToString(job.Name, id)
	e.cancelMu.Lock()
	e.cancelMap[jobKey] = cancel
	e.cancelMu.Unlock()

	// Post 钩子按 Pre 成功的逆序执行
	var postStack []action.ActionHandler

	jobWrapper.Status = model.STATUS_RUNNING
	jobWrapper.StartTime = time.Now()

	// jobWrapper 同时被本循环和落盘 goroutine 读写，改它和写盘都收口到这里
	var detailMu sync.Mutex
	saveDetail := func(mutate func()) {
		detailMu.Lock()
		if mutate != nil {
			mutate()
		}
		jober.SaveJobDetail(jobWrapper.Name, jobWrapper)
		detailMu.Unlock()
	}

	executeAction := func(ah action.ActionHandler, jobW *model.JobDetail) (err error) {
		defer func() {
			rErr := recover()
			switch rErr.(type) {
			case runtime.Error:
				logger.Errorf("runtime error: %s", rErr)
				err = fmt.Errorf("runtime error: %s", rErr)
			default:
			}
		}()
		if jobWrapper.Status != model.STATUS_RUNNING {
			return nil
		}
		if ah == nil {
			logger.Errorf("action handler is nil, job name: %s, job id: %d", jobW.Name, jobW.Id)
			return nil
		}
		err = ah.Pre()
		if err != nil {
			logger.Errorf("action pre hook error, job name: %s, job id: %d, error: %s", jobW.Name, jobW.Id, err.Error())
			return err
		}
		postStack = append(postStack, ah)
		actionResult, err := ah.Hook()
		if actionResult != nil {
			detailMu.Lock()
			mergeActionResult(jobW, actionResult)
			detailMu.Unlock()
		}
		return err
	}

	jobWrapper.Output = output.New(job.Name, jobWrapper.Id)
	for _, value := range secrets {
		jobWrapper.Output.MaskValue(value)
	}

	var jobDone = make(chan struct{})
	defer close(jobDone)

	// 定时落盘，更新运行中 step 的耗时
	go func(jobW *model.JobDetail) {
		for {
			select {
			case <-jobDone:
				return
			default:
				saveDetail(func() {
					for i := range jobW.Stages {
						for j := range jobW.Stages[i].Stage.Steps {
							if jobW.Stages[i].Stage.Steps[j].Status == model.STATUS_RUNNING {
								jobW.Stages[i].Stage.Steps[j].Duration = time.Since(jobW.Stages[i].Stage.Steps[j].StartTime).Milliseconds()
							}
						}
					}
				})
				time.Sleep(time.Second * 2)
			}
		}
	}(jobWrapper)

	// runFailed 置位后只再跑 always-run 的 step，其余保持 NOTRUN
	runFailed := false
	var runErr error

	for index, stageWrapper := range jobWrapper.Stages {
		logger.Infof("stage: %s", stageWrapper.Name)
		stageWrapper.Status = model.STATUS_RUNNING
		stageWrapper.StartTime = time.Now()
		saveDetail(func() {
			jobWrapper.Stages[index] = stageWrapper
		})
		jobWrapper.Output.NewStage(stageWrapper.Name)

		stageFailed := false
		for stepIndex, step := range stageWrapper.Stage.Steps {
			if (runFailed || stageFailed) && !step.AlwaysRun {
				continue
			}
			// run 被取消或超时后不再起新 step，中断原因带到终态
			if ctx.Err() != nil {
				stageFailed = true
				if runErr == nil {
					runErr = ctx.Err()
				}
				break
			}

			saveDetail(func() {
				stageWrapper.Stage.Steps[stepIndex].StartTime = time.Now()
				stageWrapper.Stage.Steps[stepIndex].Status = model.STATUS_RUNNING
			})

			// 步骤超时的兜底计时器，每个新 step 重置一次
			e.stepTimerMap.Store(jobKey, newStepTimer(stepLimit))

			ah := e.newActionHandler(step, ctx, jobWrapper.Output)
			jobWrapper.Output.NewStep(step.Name)
			err := executeAction(ah, jobWrapper)

			saveDetail(func() {
				stageWrapper.Stage.Steps[stepIndex].Duration = time.Since(stageWrapper.Stage.Steps[stepIndex].StartTime).Milliseconds()
				if err != nil {
					stageWrapper.Stage.Steps[stepIndex].Status = model.STATUS_FAIL
					if step.ContinueOnError {
						logger.Warnf("step %s of job %s(%d) failed, continue-on-error set", step.Name, jobWrapper.Name, jobWrapper.Id)
					} else {
						stageFailed = true
						runErr = err
					}
				} else {
					stageWrapper.Stage.Steps[stepIndex].Status = model.STATUS_SUCCESS
				}
			})
			if err != nil && step.ContinueOnError {
				jobWrapper.Output.WriteLine(fmt.Sprintf("step %s failed but is marked continue-on-error: %s", step.Name, err.Error()))
			}
		}

		for i := len(postStack) - 1; i >= 0; i-- {
			_ = postStack[i].Post()
		}
		postStack = postStack[:0]

		saveDetail(func() {
			if stageFailed {
				if errors.Is(runErr, context.Canceled) {
					stageWrapper.Status = model.STATUS_STOP
				} else {
					stageWrapper.Status = model.STATUS_FAIL
				}
				runFailed = true
			} else if runFailed {
				stageWrapper.Status = model.STATUS_NOTRUN
			} else {
				stageWrapper.Status = model.STATUS_SUCCESS
			}
			stageWrapper.Duration = time.Since(stageWrapper.StartTime).Milliseconds()
			jobWrapper.Stages[index] = stageWrapper
		})
	}
	jobWrapper.Output.Done()

	e.cancelMu.Lock()
	delete(e.cancelMap, jobKey)
	e.cancelMu.Unlock()

	// 中断的 run 以中断原因为准，主动 Cancel 记为 stop，超时记为 fail
	if ctx.Err() != nil {
		runErr = ctx.Err()
	}
	saveDetail(func() {
		if runErr == nil {
			jobWrapper.Status = model.STATUS_SUCCESS
		} else if errors.Is(runErr, context.Canceled) {
			jobWrapper.Status = model.STATUS_STOP
			jobWrapper.Error = runErr.Error()
		} else {
			jobWrapper.Status = model.STATUS_FAIL
			jobWrapper.Error = runErr.Error()
		}
		jobWrapper.Duration = time.Since(jobWrapper.StartTime).Milliseconds()
	})

	return runErr
}

// newActionHandler 按 uses 的基础名选 handler，带版本号的引用先剥掉版本
func (e *Executor) newActionHandler(step model.Step, ctx context.Context, out *output.Output) action.ActionHandler {
	name, _ := utils.ParseActionRef(step.Uses)
	switch name {
	case "", "shell":
		return action.NewShellAction(step, ctx, out)
	case "git-checkout":
		return action.NewGitAction(step, ctx, out)
	case "trivy-scan":
		return action.NewTrivyScanAction(step, ctx, out)
	case "trivy-sbom":
		return action.NewTrivySbomAction(step, ctx, out)
	case "bandit-scan":
		return action.NewBanditAction(step, ctx, out)
	case "snyk-scan":
		return action.NewSnykAction(step, ctx, out)
	case "artifact-upload":
		return action.NewArtifactoryAction(step, ctx, out)
	case "sarif-upload":
		return action.NewSarifUploadAction(step, ctx, out)
	case "ipfs-publish":
		return action.NewIpfsAction(step, ctx, out)
	case "ai-summary":
		return action.NewAiSummaryAction(step, ctx, out)
	default:
		return nil
	}
}

// resolveSecrets 把各 step 声明的 secret 从节点环境变量取出来。
// 值随后会注册进输出脱敏列表，不会出现在 run log 里。
func resolveSecrets(job *model.Job) map[string]string {
	secrets := make(map[string]string)
	for _, stage := range job.Stages {
		for _, step := range stage.Steps {
			for _, name := range step.Secrets {
				if _, ok := secrets[name]; ok {
					continue
				}
				value := os.Getenv(name)
				if value == "" {
					logger.Warnf("secret %s declared by job %s is empty on this node", name, job.Name)
				}
				secrets[name] = value
			}
		}
	}
	return secrets
}

func mergeActionResult(jobW *model.JobDetail, result *model.ActionResult) {
	if len(result.Artifactorys) > 0 {
		jobW.Artifactorys = append(jobW.Artifactorys, result.Artifactorys...)
	}
	if len(result.Reports) > 0 {
		jobW.Reports = append(jobW.Reports, result.Reports...)
	}
	if len(result.FindingsUploads) > 0 {
		jobW.FindingsUploads = append(jobW.FindingsUploads, result.FindingsUploads...)
	}
	if len(result.SbomSubmissions) > 0 {
		jobW.SbomSubmissions = append(jobW.SbomSubmissions, result.SbomSubmissions...)
	}
	if result.CodeInfo != "" {
		jobW.CodeInfo = result.CodeInfo
	}
}

// Cancel 取消
func (e *Executor) Cancel(jobName string, id int) error {
	jobKey := utils.FormatJobToString(jobName, id)
	e.cancelMu.Lock()
	cancel, ok := e.cancelMap[jobKey]
	if ok {
		delete(e.cancelMap, jobKey)
	}
	e.cancelMu.Unlock()
	if ok {
		cancel()
	} else {
		logger.Errorf("job cancel function not found: %s/%d", jobName, id)
	}
	e.StatusChan <- model.NewStatusChangeMsg(jobName, id, model.STATUS_STOP)
	return nil
}

func (e *Executor) GetJobStatus(jobName string, jobID int) (model.Status, error) {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if _, ok := e.cancelMap[utils.FormatJobToString(jobName, jobID)]; ok {
		return model.STATUS_RUNNING, nil
	}
	return model.STATUS_NOTRUN, fmt.Errorf("job not found")
}

// 定时巡检，单个 step 卡死时取消整个 run
func (e *Executor) handleTimerListener() {
	for {
		e.stepTimerMap.Range(func(key, value interface{}) bool {
			timer := value.(*stepTimer)
			if timer.isTimeout() {
				name, id, err := utils.GetJobNameAndIDFromFormatString(key.(string))
				if err != nil {
					logger.Errorf("get job name and id from format string error: %v, key: %s", err, key.(string))
					return true
				}
				if err := e.Cancel(name, id); err != nil {
					logger.Errorf("cancel job error: %v, key: %s", err, key.(string))
				}
				e.stepTimerMap.Delete(key)
			}
			return true
		})
		time.Sleep(time.Minute)
	}
}

// stepWatchdogLimit 默认值和 job 声明的超时取大者
func stepWatchdogLimit(jobTimeout time.Duration) time.Duration {
	limit := time.Duration(consts.STEP_TIMEOUT_MINUTE) * time.Minute
	if jobTimeout > limit {
		limit = jobTimeout
	}
	return limit
}

type stepTimer struct {
	startTime time.Time
	limit     time.Duration
}

func newStepTimer(limit time.Duration) *stepTimer {
	return &stepTimer{
		startTime: time.Now(),
		limit:     limit,
	}
}

func (t *stepTimer) isTimeout() bool {
	return time.Since(t.startTime) > t.limit
}
