package consts

const (
	// WORK_DIR_NAME 引擎数据根目录，位于用户主目录下
	WORK_DIR_NAME           = ".warden"
	JOB_DIR_NAME            = "jobs"
	JOB_RUN_DIR_NAME        = "runs"
	JOB_RUN_LOG_DIR_NAME    = "run-logs"
	ArtifactoryDir          = "artifactory"
	ReportDir               = "reports"

	// STEP_TIMEOUT_MINUTE 单个 step 的兜底超时下限，
	// job 声明了更长的 timeout-minutes 时按 job 的来
	STEP_TIMEOUT_MINUTE = 30

	// DEFAULT_JOB_TIMEOUT_MINUTE job 未声明 timeout-minutes 时使用
	DEFAULT_JOB_TIMEOUT_MINUTE = 360
)

// 触发方式，记录到 run 详情里
const (
	TRIGGER_MODE_MANUAL   = "manual"
	TRIGGER_MODE_SCHEDULE = "schedule"
)

// NODE_LABEL_HOSTED 空 runs-on 等价于托管池，其余标签由节点配置自由声明
const NODE_LABEL_HOSTED = "hosted"

const (
	SarifSuffix  = ".sarif"
	HtmlSuffix   = ".html"
	TxtSuffix    = ".txt"
	XmlSuffix    = ".xml"
	JsonSuffix   = ".json"
)
