package model

type Status int

const (
	STATUS_NOTRUN Status = iota
	STATUS_RUNNING
	STATUS_FAIL
	STATUS_SUCCESS
	STATUS_STOP
)

func (s Status) String() string {
	switch s {
	case STATUS_NOTRUN:
		return "notrun"
	case STATUS_RUNNING:
		return "running"
	case STATUS_FAIL:
		return "fail"
	case STATUS_SUCCESS:
		return "success"
	case STATUS_STOP:
		return "stop"
	default:
		return "unknown"
	}
}
