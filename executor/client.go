package executor

import (
	jober "github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
)

// ExecutorClient 消费执行队列，驱动本机的 Executor。
// worker engine 把 master 下发的指令翻译成 QueueMessage 丢进来。
type ExecutorClient struct {
	Executor   *Executor
	QueueChan  chan model.QueueMessage
	StatusChan chan model.StatusChangeMessage
}

func NewExecutorClient() *ExecutorClient {
	statusChan := make(chan model.StatusChangeMessage, 100)
	return &ExecutorClient{
		Executor:   NewExecutor(statusChan),
		QueueChan:  make(chan model.QueueMessage, 100),
		StatusChan: statusChan,
	}
}

// Main 启动队列消费循环，非阻塞
func (c *ExecutorClient) Main() {
	go func() {
		for {
			msg, ok := <-c.QueueChan
			if !ok {
				logger.Error("executor client queue channel closed")
				return
			}
			logger.Debugf("executor client receive message: %s(%d), command %d", msg.JobName, msg.JobId, msg.Command)

			switch msg.Command {
			case model.Command_Start:
				// 带了 pipeline 内容就先落盘，保证本机有最新版本
				if msg.PipelineFile != "" {
					if err := jober.SaveJob(msg.JobName, msg.PipelineFile); err != nil {
						logger.Errorf("save job error: %v", err)
						continue
					}
				}
				job, err := jober.GetJobObject(msg.JobName)
				if err != nil {
					logger.Errorf("get job object error: %v", err)
					continue
				}
				go func(msg model.QueueMessage, job *model.Job) {
					if err := c.Executor.Execute(msg.JobId, job, msg.TriggerMode); err != nil {
						logger.Errorf("execute job %s(%d) error: %v", msg.JobName, msg.JobId, err)
					}
				}(msg, job)

			case model.Command_Stop:
				if err := c.Executor.Cancel(msg.JobName, msg.JobId); err != nil {
					logger.Errorf("cancel job %s(%d) error: %v", msg.JobName, msg.JobId, err)
				}
			}
		}
	}()
}

func (c *ExecutorClient) Execute(jobId int, job *model.Job, triggerMode string) error {
	return c.Executor.Execute(jobId, job, triggerMode)
}
