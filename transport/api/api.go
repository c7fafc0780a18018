package api

// Event worker 上行消息，由 master 的 http server 收进 event channel
type Event struct {
	Type   EventType     `json:"type"`
	Node   Node          `json:"node"`
	Ack    *Ack          `json:"ack,omitempty"`
	Status *StatusReport `json:"status,omitempty"`
	Log    *LogChunk     `json:"log,omitempty"`
}

type EventType int

const (
	EventRegister EventType = iota + 1
	EventUnregister
	EventPing
	EventAck
	EventStatus
	EventLog
)

type Node struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Labels  []string `json:"labels,omitempty"`
}

// Order master 下发给 worker 的指令
type Order struct {
	Type    OrderType  `json:"type"`
	ExecReq ExecuteReq `json:"execReq"`
}

type OrderType int

const (
	OrderExecute OrderType = iota + 1
	OrderCancel
)

type ExecuteReq struct {
	Name         string `json:"name"`
	PipelineFile string `json:"pipelineFile,omitempty"`
	JobRunId     int    `json:"jobRunId"`
	TriggerMode  string `json:"triggerMode,omitempty"`
}

// Ack worker 对某条指令的收到确认
type Ack struct {
	OrderType int    `json:"orderType"`
	JobName   string `json:"jobName"`
}

// ScheduleSummary 管理端点返回的调度条目
type ScheduleSummary struct {
	JobName string   `json:"jobName"`
	Exprs   []string `json:"exprs"`
	NextRun string   `json:"nextRun"`
}

type StatusReport struct {
	Name   string `json:"name"`
	RunId  int    `json:"runId"`
	Status int    `json:"status"`
}

type LogChunk struct {
	Name    string `json:"name"`
	RunId   int    `json:"runId"`
	Content string `json:"content"`
}
