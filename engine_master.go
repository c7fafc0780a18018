package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/dispatcher"
	jober "github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/transport/api"
	"github.com/warden-shared/warden-engine/transport/server"
	"github.com/warden-shared/warden-engine/trigger"
	"github.com/warden-shared/warden-engine/utils"
)

type masterEngine struct {
	dispatch          dispatcher.IDispatcher
	server            *server.Server
	eventChan         chan *api.Event
	scheduler         *trigger.Scheduler
	runningJobs       sync.Map // key: jobName, value: run id
	statusChangeHooks []func(message model.StatusChangeMessage)
	hookMu            sync.Mutex
}

func newMasterEngine(listenAddress string, cfg *config.Config) (*masterEngine, error) {
	e := &masterEngine{}
	e.eventChan = make(chan *api.Event, 100)

	srv, err := server.Start(listenAddress, e.eventChan)
	if err != nil {
		return nil, err
	}
	e.server = srv
	e.dispatch = dispatcher.NewHttpDispatcher()
	e.scheduler = trigger.NewScheduler(e.fireScheduledJob)
	e.server.SetManagement(e)

	e.handleNodeEvents()
	e.healthcheck()
	return e, nil
}

// TriggerJob 管理端点的手工触发入口
func (e *masterEngine) TriggerJob(name string) (*model.JobDetail, error) {
	detail, err := jober.CreateJobDetail(name, consts.TRIGGER_MODE_MANUAL)
	if err != nil {
		return nil, err
	}
	if err := e.dispatchJob(name, detail.Id, consts.TRIGGER_MODE_MANUAL); err != nil {
		return nil, err
	}
	return detail, nil
}

func (e *masterEngine) CancelRun(name string, id int) error {
	return e.cancelJob(name, id)
}

func (e *masterEngine) ListJobs(keyword string, page, size int) (*model.JobPage, error) {
	return jober.JobList(keyword, page, size)
}

func (e *masterEngine) ListSchedules() []api.ScheduleSummary {
	entries := e.scheduler.List()
	result := make([]api.ScheduleSummary, 0, len(entries))
	for _, entry := range entries {
		result = append(result, api.ScheduleSummary{
			JobName: entry.JobName,
			Exprs:   entry.Exprs,
			NextRun: entry.NextRun.UTC().Format(time.RFC3339),
		})
	}
	return result
}

// handleNodeEvents master 处理 worker 上行消息的地方
func (e *masterEngine) handleNodeEvents() {
	go func() {
		logger.Debugf("node api server start listen events")
		for {
			event, ok := <-e.eventChan
			if !ok {
				logger.Error("node event channel closed")
				return
			}
			logger.Tracef("node event: %+v", event)
			switch event.Type {
			case api.EventRegister:
				node := &model.Node{Name: event.Node.Name, Address: event.Node.Address, Labels: event.Node.Labels}
				if err := e.dispatch.Register(node); err != nil {
					logger.Debugf("register node: %v", err)
				} else {
					logger.Infof("register node success: %s@%s labels=%v", node.Name, node.Address, node.Labels)
				}

			case api.EventUnregister:
				node := &model.Node{Name: event.Node.Name, Address: event.Node.Address}
				if err := e.dispatch.UnRegister(node); err != nil {
					logger.Errorf("unregister node error: %v", err)
				}

			case api.EventPing:
				node := &model.Node{Name: event.Node.Name, Address: event.Node.Address, Labels: event.Node.Labels}
				if err := e.dispatch.Ping(node); err != nil {
					// 心跳先于注册到达时重新注册
					_ = e.dispatch.Register(node)
				}

			case api.EventAck:
				e.dispatch.Received(dispatcher.ReceivedInfo{
					OrderType: event.Ack.OrderType,
					Node:      utils.GetNodeKey(event.Node.Name, event.Node.Address),
					JobName:   event.Ack.JobName,
				})

			case api.EventStatus:
				e.applyStatusReport(event.Status)

			case api.EventLog:
				if err := jober.SaveJobLogString(event.Log.Name, event.Log.RunId, event.Log.Content); err != nil {
					logger.Errorf("save job log error: %v", err)
				}

			default:
				logger.Warnf("unknown node event: %+v", event)
			}
		}
	}()
}

// applyStatusReport 按 worker 上报的状态更新 run 记录，终态时清掉运行标记
func (e *masterEngine) applyStatusReport(report *api.StatusReport) {
	status := model.Status(report.Status)
	logger.Infof("job %s(%d) status report: %s", report.Name, report.RunId, status.String())

	if detail, err := jober.GetJobDetail(report.Name, report.RunId); err == nil {
		if detail.Status != status {
			detail.Status = status
			if err := jober.SaveJobDetail(report.Name, detail); err != nil {
				logger.Errorf("save job detail error: %v", err)
			}
		}
	}

	if status != model.STATUS_RUNNING && status != model.STATUS_NOTRUN {
		if v, ok := e.runningJobs.Load(report.Name); ok && v.(int) == report.RunId {
			e.runningJobs.Delete(report.Name)
		}
		e.notifyStatusChange(model.NewStatusChangeMsg(report.Name, report.RunId, status))
	}
}

func (e *masterEngine) registerStatusChangeHook(hook func(message model.StatusChangeMessage)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.statusChangeHooks = append(e.statusChangeHooks, hook)
}

func (e *masterEngine) notifyStatusChange(msg model.StatusChangeMessage) {
	e.hookMu.Lock()
	hooks := make([]func(message model.StatusChangeMessage), len(e.statusChangeHooks))
	copy(hooks, e.statusChangeHooks)
	e.hookMu.Unlock()
	for _, hook := range hooks {
		go hook(msg)
	}
}

// dispatchJob 选节点下发 run。收不到确认就重发，10 次不成功放弃。
func (e *masterEngine) dispatchJob(name string, id int, triggerMode string) error {
	job, err := jober.GetJobObject(name)
	if err != nil {
		return err
	}
	yamlString, err := jober.GetJob(name)
	if err != nil {
		return err
	}

	// 首选节点 10 次都收不到确认时，换下一个匹配的节点再来一轮
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		node, err := e.dispatch.DispatchNode(job.RunsOn)
		if err != nil {
			logger.Errorf("dispatch node error: %s", err.Error())
			e.runningJobs.Delete(name)
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		nodeKey := utils.GetNodeKey(node.Name, node.Address)

		order := e.dispatch.SendJob(name, yamlString, id, triggerMode, node)
		e.server.Enqueue(nodeKey, order)
		e.runningJobs.Store(name, id)

		receivedInfo := dispatcher.ReceivedInfo{
			OrderType: int(api.OrderExecute),
			Node:      nodeKey,
			JobName:   name,
		}
		for i := 0; i < 10; i++ {
			time.Sleep(time.Second)
			if e.dispatch.IsReceived(receivedInfo) {
				logger.Tracef("send job to node %s success", nodeKey)
				return nil
			}
			if i == 9 {
				break
			}
			logger.Warnf("send job %s not acked, retry %d", name, i+1)
			e.server.Enqueue(nodeKey, order)
		}
		lastErr = &model.SendJobError{
			ErrorNode: nodeKey,
			JobName:   name,
			JobID:     id,
			Err:       fmt.Errorf("already retry 10 times"),
		}
		// 不回确认的节点注销掉，下一轮换别的节点
		logger.Warnf("node %s never acked job %s, dropping it and picking another node", nodeKey, name)
		if err := e.dispatch.UnRegisterWithKey(nodeKey); err != nil {
			logger.Errorf("unregister node %s error: %v", nodeKey, err)
		}
	}
	e.runningJobs.Delete(name)
	return lastErr
}

func (e *masterEngine) cancelJob(name string, id int) error {
	order, node, err := e.dispatch.CancelJob(name, id)
	if err != nil {
		return err
	}
	e.server.Enqueue(utils.GetNodeKey(node.Name, node.Address), order)
	return nil
}

func (e *masterEngine) getJobStatus(name string, id int) (model.Status, error) {
	if v, ok := e.runningJobs.Load(name); ok && v.(int) == id {
		return model.STATUS_RUNNING, nil
	}
	detail, err := jober.GetJobDetail(name, id)
	if err != nil {
		return model.STATUS_NOTRUN, err
	}
	return detail.Status, nil
}

func (e *masterEngine) isValidWorker(w string) bool {
	return e.dispatch.IsValidNode(w)
}

// loadSchedules 把所有带 on.schedule 的 job 注册进调度器并启动
func (e *masterEngine) loadSchedules() error {
	page, err := jober.JobList("", 1, 10000)
	if err != nil {
		return err
	}
	for _, jobVo := range page.Data {
		if err := e.refreshSchedule(jobVo.Name); err != nil {
			logger.Errorf("load schedule for job %s error: %v", jobVo.Name, err)
		}
	}
	e.scheduler.Start()
	logger.Infof("scheduler started with %d entries", len(e.scheduler.List()))
	return nil
}

// refreshSchedule job 创建或更新后同步调度条目
func (e *masterEngine) refreshSchedule(name string) error {
	job, err := jober.GetJobObject(name)
	if err != nil {
		return err
	}
	if job.Trigger == nil || len(job.Trigger.Schedules) == 0 {
		e.scheduler.Remove(name)
		return nil
	}
	exprs := make([]string, 0, len(job.Trigger.Schedules))
	for _, schedule := range job.Trigger.Schedules {
		exprs = append(exprs, schedule.Cron)
	}
	return e.scheduler.Add(name, exprs)
}

// fireScheduledJob 调度触发入口。同名 job 还在跑时本次触发直接跳过，
// 不排队也不补跑。
func (e *masterEngine) fireScheduledJob(jobName string) {
	if runID, ok := e.runningJobs.Load(jobName); ok {
		logger.Warnf("job %s run %d still running, skip this scheduled fire", jobName, runID)
		return
	}
	detail, err := jober.CreateJobDetail(jobName, consts.TRIGGER_MODE_SCHEDULE)
	if err != nil {
		logger.Errorf("create run for scheduled job %s error: %v", jobName, err)
		return
	}
	if err := e.dispatchJob(jobName, detail.Id, consts.TRIGGER_MODE_SCHEDULE); err != nil {
		logger.Errorf("dispatch scheduled job %s(%d) error: %v", jobName, detail.Id, err)
	}
}

// 每分钟巡检一次节点心跳
func (e *masterEngine) healthcheck() {
	go func() {
		for {
			time.Sleep(time.Minute)
			e.dispatch.HealthcheckNodes()
		}
	}()
}

func isLoopback(address string) bool {
	return strings.HasPrefix(address, "127.0.0.1") || strings.HasPrefix(address, "localhost")
}
