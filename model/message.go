package model

type Command int

const (
	Command_Start Command = iota
	Command_Stop
)

type QueueMessage struct {
	JobName      string
	JobId        int
	PipelineFile string
	TriggerMode  string
	Command      Command
	Node         *Node
}

func NewStartQueueMsg(name, pipelineFile string, id int, triggerMode string) QueueMessage {
	return QueueMessage{
		JobName:      name,
		JobId:        id,
		PipelineFile: pipelineFile,
		TriggerMode:  triggerMode,
		Command:      Command_Start,
	}
}

func NewStopQueueMsg(name, pipelineFile string, id int) QueueMessage {
	return QueueMessage{
		JobName:      name,
		JobId:        id,
		PipelineFile: pipelineFile,
		Command:      Command_Stop,
	}
}

type StatusChangeMessage struct {
	JobName string
	JobId   int
	Status  Status
}

func NewStatusChangeMsg(name string, id int, status Status) StatusChangeMessage {
	return StatusChangeMessage{
		name,
		id,
		status,
	}
}
