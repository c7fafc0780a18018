package engine

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/executor"
	jober "github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/transport/api"
	transport "github.com/warden-shared/warden-engine/transport/client"
	"github.com/warden-shared/warden-engine/utils"
)

type workerEngine struct {
	name, address string
	masterAddress string
	executeClient *executor.ExecutorClient
	client        *transport.Client
	doneJobList   sync.Map
}

func newWorkerEngine(masterAddress string, cfg *config.Config) (*workerEngine, error) {
	e := &workerEngine{}
	e.name, _ = utils.GetMyHostname()
	if isLoopback(masterAddress) {
		e.address = "127.0.0.1"
	} else {
		e.address, _ = utils.GetMyIP()
	}
	e.masterAddress = masterAddress

	labels := cfg.NodeLabels
	if len(labels) == 0 {
		labels = []string{consts.NODE_LABEL_HOSTED}
	}

	e.executeClient = executor.NewExecutorClient()
	e.executeClient.Executor.FindingsEndpoint = cfg.Findings.Endpoint
	e.executeClient.Executor.FindingsTokenEnv = cfg.Findings.TokenEnv
	e.executeClient.Executor.SbomEndpoint = cfg.Sbom.Endpoint
	e.executeClient.Executor.OpenAIModel = cfg.OpenAI.Model

	e.client = transport.New(masterAddress, api.Node{
		Name:    e.name,
		Address: e.address,
		Labels:  labels,
	})

	// 远程 worker 跑完还要把产物推回 master，本机 worker 共享数据目录，不用推
	if !isLoopback(masterAddress) {
		e.executeClient.Executor.ArtifactUploader = func(jobName string, jobId int, path string) error {
			return e.client.UploadArtifact(jobName, jobId, filepath.Base(path), path)
		}
	}

	if err := e.register(); err != nil {
		return nil, err
	}
	e.keepAlive()
	e.client.StartPolling()
	e.handleOrders()
	e.handleStatusChange()
	e.executeClient.Main()

	return e, nil
}

// 向 master 注册自己，起不来就多试几次
func (e *workerEngine) register() error {
	var err error
	for i := 0; i < 10; i++ {
		if err = e.client.Register(); err == nil {
			logger.Infof("worker %s@%s registered to %s", e.name, e.address, e.masterAddress)
			return nil
		}
		logger.Warnf("register to master failed, retry %d: %v", i+1, err)
		time.Sleep(time.Second * 3)
	}
	return err
}

// 定时心跳，避免被 master 当成失联节点剔除
func (e *workerEngine) keepAlive() {
	go func() {
		for {
			time.Sleep(time.Second * 30)
			if err := e.client.Ping(); err != nil {
				logger.Errorf("ping master error: %v", err)
			}
		}
	}()
}

// handleOrders 消费 master 下发的指令
func (e *workerEngine) handleOrders() {
	go func() {
		for {
			order := <-e.client.RecvOrderChan
			logger.Debugf("worker receive order: type %d, job %s(%d)", order.Type, order.ExecReq.Name, order.ExecReq.JobRunId)
			switch order.Type {
			case api.OrderExecute:
				if err := e.client.Ack(api.OrderExecute, order.ExecReq.Name); err != nil {
					logger.Errorf("ack order error: %v", err)
				}
				e.executeClient.QueueChan <- model.NewStartQueueMsg(
					order.ExecReq.Name, order.ExecReq.PipelineFile, order.ExecReq.JobRunId, order.ExecReq.TriggerMode)
				e.sendLog(order.ExecReq.Name, order.ExecReq.JobRunId)

			case api.OrderCancel:
				if err := e.client.Ack(api.OrderCancel, order.ExecReq.Name); err != nil {
					logger.Errorf("ack order error: %v", err)
				}
				e.executeClient.QueueChan <- model.NewStopQueueMsg(
					order.ExecReq.Name, order.ExecReq.PipelineFile, order.ExecReq.JobRunId)

			default:
				logger.Warnf("worker receive unknown order: %+v", order)
			}
		}
	}()
}

// handleStatusChange 执行器的终态上报给 master，同时记到 doneJobList
// 让日志回传循环收尾
func (e *workerEngine) handleStatusChange() {
	go func() {
		for {
			msg := <-e.executeClient.StatusChan
			e.doneJobList.Store(utils.FormatJobToString(msg.JobName, msg.JobId), struct{}{})
			if err := e.client.PushStatus(msg.JobName, msg.JobId, int(msg.Status)); err != nil {
				logger.Errorf("push status error: %v", err)
			}
		}
	}()
}

// sendLog 每 0.5s 把 run log 推给 master，任务结束后再推一次保证完整
func (e *workerEngine) sendLog(name string, id int) {
	go func() {
		doneJobKey := utils.FormatJobToString(name, id)
		for {
			logString, err := jober.GetJobLogString(name, id)
			if err == nil {
				if err := e.client.PushLog(name, id, logString); err != nil {
					logger.Errorf("push log error: %v", err)
				}
			}

			if _, ok := e.doneJobList.Load(doneJobKey); ok {
				e.doneJobList.Delete(doneJobKey)
				if logString, err := jober.GetJobLogString(name, id); err == nil {
					if err := e.client.PushLog(name, id, logString); err != nil {
						logger.Errorf("push final log error: %v", err)
					}
				}
				return
			}

			time.Sleep(time.Millisecond * 500)
		}
	}()
}

func (e *workerEngine) GetJobStatus(jobName string, jobID int) (model.Status, error) {
	return e.executeClient.Executor.GetJobStatus(jobName, jobID)
}
