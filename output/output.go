package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/utils"
)

const timeLayout = "2006-01-02 15:04:05"

type Output struct {
	Name               string
	ID                 int
	buffer             []string
	f                  *os.File
	mu                 sync.Mutex
	filename           string
	fileCursor         int
	bufferCursor       int
	secrets            []string
	stageTimeConsuming map[string]TimeConsuming
	timeConsuming      TimeConsuming
}

type Log struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Stages    []Stage
	Lines     []string
}

type Stage struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Name      string
	Lines     []string
}

type Step struct {
	Name  string
	Lines []string
}

type TimeConsuming struct {
	Done      bool
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// New 新建一个 Output，初始化日志文件并启动定时刷盘
func New(name string, id int) *Output {
	o := &Output{
		Name:   name,
		ID:     id,
		buffer: make([]string, 0, 16),
		timeConsuming: TimeConsuming{
			StartTime: time.Now().Local(),
		},
		stageTimeConsuming: make(map[string]TimeConsuming),
	}

	err := o.initFile()
	if err != nil {
		logger.Errorf("Failed to init output file, err: %s", err)
		return o
	}

	o.timedWriteFile()

	o.WriteLineWithNoTime("[Run] Started on " + o.timeConsuming.StartTime.Format(timeLayout))

	return o
}

// MaskValue 注册一个需要打码的 secret 值，之后写入的所有行里都会被替换
func (o *Output) MaskValue(value string) {
	if value == "" {
		return
	}
	o.mu.Lock()
	o.secrets = append(o.secrets, value)
	o.mu.Unlock()
}

// maskLocked 调用方必须持有 o.mu
func (o *Output) maskLocked(line string) string {
	for _, s := range o.secrets {
		line = strings.ReplaceAll(line, s, "***")
	}
	return line
}

// Duration 返回持续时间
func (o *Output) Duration() time.Duration {
	if o.timeConsuming.Done {
		return o.timeConsuming.Duration
	}
	return time.Since(o.timeConsuming.StartTime)
}

func (o *Output) TimeConsuming() TimeConsuming {
	return o.timeConsuming
}

// StageDuration 返回某个 Stage 的持续时间
func (o *Output) StageDuration(name string) time.Duration {
	stageTimeConsuming, ok := o.stageTimeConsuming[name]
	if !ok {
		return 0
	}
	if stageTimeConsuming.Done {
		return stageTimeConsuming.Duration
	}
	if stageTimeConsuming.StartTime.IsZero() {
		return 0
	}
	return time.Since(stageTimeConsuming.StartTime)
}

// Done 标记输出已完成，将缓存刷入文件后关闭
func (o *Output) Done() {
	logger.Trace("output done, flush all, close file")
	now := time.Now().Local()

	for k, v := range o.stageTimeConsuming {
		if !v.Done {
			v.EndTime = now
			v.Duration = v.EndTime.Sub(v.StartTime)
			v.Done = true
			o.stageTimeConsuming[k] = v
			o.WriteLineWithNoTime(fmt.Sprintf("[TimeConsuming] EndTime: %s, Duration: %s", v.EndTime.Format(timeLayout), v.Duration))
		}
	}

	o.mu.Lock()
	o.timeConsuming.Done = true
	o.timeConsuming.EndTime = now
	o.timeConsuming.Duration = now.Sub(o.timeConsuming.StartTime)
	o.flush(o.buffer[o.fileCursor:])
	o.flush([]string{fmt.Sprintf("\n[Run] Finished on %s, Duration: %s\n\n", now.Format(timeLayout), o.timeConsuming.Duration)})
	if o.f != nil {
		o.f.Close()
	}
	o.mu.Unlock()
}

// WriteLine 写入一行，带时间戳，secret 会被打码。
// buffer 同时被刷盘协程读，写入必须持锁。
func (o *Output) WriteLine(line string) {
	timeFormat := fmt.Sprintf("[%s] ", time.Now().Local().Format(timeLayout))
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	o.mu.Lock()
	o.buffer = append(o.buffer, timeFormat+o.maskLocked(line))
	o.mu.Unlock()
}

func (o *Output) WriteLineWithNoTime(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	o.mu.Lock()
	o.buffer = append(o.buffer, o.maskLocked(line))
	o.mu.Unlock()
}

// WriteCommandLine 写入一行命令，前面加 "> "
func (o *Output) WriteCommandLine(line string) {
	o.WriteLine("> " + line)
}

// Content 返回从起始到现在的所有内容
func (o *Output) Content() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bufferCursor = len(o.buffer)
	return strings.Join(o.buffer[:o.bufferCursor], "")
}

// NewContent 返回自上次读取后新出现的内容
func (o *Output) NewContent() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bufferCursor >= len(o.buffer) {
		return ""
	}
	endIndex := len(o.buffer)
	result := strings.Join(o.buffer[o.bufferCursor:endIndex], "")
	o.bufferCursor = endIndex
	return result
}

// NewStage 写入 [Pipeline] Stage: 行，表示新的 Stage 开始
func (o *Output) NewStage(name string) {
	for k, v := range o.stageTimeConsuming {
		if !v.Done {
			v.EndTime = time.Now().Local()
			v.Duration = v.EndTime.Sub(v.StartTime)
			v.Done = true
			o.stageTimeConsuming[k] = v
			o.WriteLineWithNoTime(fmt.Sprintf("[TimeConsuming] EndTime: %s, Duration: %s", v.EndTime.Format(timeLayout), v.Duration))
		}
	}

	o.WriteLineWithNoTime("\n")
	o.WriteLineWithNoTime("[Pipeline] Stage: " + name)

	startTime := time.Now().Local()
	o.WriteLineWithNoTime("[TimeConsuming] StartTime: " + startTime.Format(timeLayout))
	o.stageTimeConsuming[name] = TimeConsuming{
		StartTime: startTime,
	}
}

// NewStep 写入 [Pipeline] Step: 行，表示新的 Step 开始
func (o *Output) NewStep(name string) {
	o.WriteLineWithNoTime("[Pipeline] Step: " + name)
}

// 在一个协程中定时刷入文件
func (o *Output) timedWriteFile() {
	go func() {
		for {
			o.mu.Lock()
			if o.timeConsuming.Done {
				o.mu.Unlock()
				break
			}
			if endIndex := len(o.buffer); endIndex > o.fileCursor {
				if err := o.flush(o.buffer[o.fileCursor:endIndex]); err != nil {
					logger.Error(err)
				}
				o.fileCursor = endIndex
			}
			o.mu.Unlock()
			time.Sleep(500 * time.Millisecond)
		}
	}()
}

func (o *Output) flush(arr []string) error {
	if o.f == nil {
		return nil
	}
	for _, line := range arr {
		if _, err := o.f.WriteString(line); err != nil {
			logger.Error(err)
			return err
		}
	}
	return nil
}

func (o *Output) initFile() error {
	o.mu.Lock()
	if o.f != nil {
		o.mu.Unlock()
		return nil
	}

	if o.filename == "" {
		o.filename = filepath.Join(utils.DefaultConfigDir(), consts.JOB_DIR_NAME, o.Name, consts.JOB_RUN_LOG_DIR_NAME, fmt.Sprintf("%d.log", o.ID))
	}

	basepath := filepath.Dir(o.filename)
	if err := os.MkdirAll(basepath, 0755); err != nil {
		o.mu.Unlock()
		return err
	}

	f, err := os.OpenFile(o.filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		logger.Errorf("Failed to create output log file %s, err: %s\n", o.filename, err)
		o.mu.Unlock()
		return err
	}
	o.f = f
	o.mu.Unlock()
	logger.Tracef("Create output log file %s success\n", o.filename)
	return nil
}

// Filename 返回文件名
func (o *Output) Filename() string {
	return o.filename
}

// StageOutputList 返回各 Stage 的输出
func (o *Output) StageOutputList() []Stage {
	o.mu.Lock()
	lines := make([]string, len(o.buffer))
	copy(lines, o.buffer)
	o.mu.Unlock()
	return parseLogLines(lines).Stages
}

// ParseLogFile 解析日志文件
func ParseLogFile(filename string) (Log, error) {
	lines, err := ReadFileLines(filename)
	if err != nil {
		return Log{}, err
	}
	result := parseLogLines(lines)
	return result, nil
}

// ReadFileLines 读取文件中的行
func ReadFileLines(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fileScanner := bufio.NewScanner(f)
	fileScanner.Split(bufio.ScanLines)
	var lines []string
	for fileScanner.Scan() {
		lines = append(lines, fileScanner.Text())
	}
	return lines, nil
}

func parseLogLines(lines []string) Log {
	var log Log
	log.Lines = lines

	var stageName = "unknown"
	var stageNameList []string

	// map 无序，用数组记录 stage 出现的顺序
	var stageOutputMap = make(map[string][]string)
	for _, line := range lines {
		if strings.HasPrefix(line, "[Run]") || line == "\n" || line == "" {
			if strings.HasPrefix(line, "[Run] Started on ") {
				startTime := strings.TrimPrefix(line, "[Run] Started on ")
				log.StartTime, _ = time.Parse(timeLayout, startTime)
			}
			if strings.HasPrefix(line, "[Run] Finished on ") {
				endTimeAndDuration := strings.TrimPrefix(line, "[Run] Finished on ")
				endTimeAndDurationSlice := strings.Split(endTimeAndDuration, ",")
				endTime := endTimeAndDurationSlice[0]
				log.EndTime, _ = time.Parse(timeLayout, endTime)

				if len(endTimeAndDurationSlice) > 1 {
					duration := endTimeAndDurationSlice[1]
					duration = strings.TrimPrefix(duration, " Duration: ")
					log.Duration, _ = time.ParseDuration(duration)
				}
			}

			continue
		}
		if strings.HasPrefix(line, "[Pipeline] Stage: ") {
			stageName = strings.TrimPrefix(line, "[Pipeline] Stage: ")
			stageOutputMap[stageName] = make([]string, 0)
			stageNameList = append(stageNameList, stageName)
		}
		stageOutputMap[stageName] = append(stageOutputMap[stageName], line)
	}

	for _, name := range stageNameList {
		v := stageOutputMap[name]
		var startTime, endTime time.Time
		var duration time.Duration
		for _, line := range v {
			if strings.HasPrefix(line, "[TimeConsuming] StartTime: ") {
				startTimeString := strings.TrimPrefix(line, "[TimeConsuming] StartTime: ")
				startTime, _ = time.Parse(timeLayout, startTimeString)
			}
			if strings.HasPrefix(line, "[TimeConsuming] EndTime: ") {
				endTimeString := strings.TrimPrefix(line, "[TimeConsuming] EndTime: ")
				endTimeAndDurationSlice := strings.Split(endTimeString, ",")
				endTime, _ = time.Parse(timeLayout, endTimeAndDurationSlice[0])

				if len(endTimeAndDurationSlice) > 1 {
					durationString := endTimeAndDurationSlice[1]
					durationString = strings.TrimPrefix(durationString, " Duration: ")
					duration, _ = time.ParseDuration(durationString)
				}
			}
		}

		log.Stages = append(log.Stages, Stage{
			Name:      name,
			Lines:     v,
			StartTime: startTime,
			EndTime:   endTime,
			Duration:  duration,
		})
	}

	return log
}

// ParseStageSteps 解析一个 stage 中的 step
func ParseStageSteps(stage *Stage) []*Step {
	var stepNameList []string
	var stepMap = make(map[string]*Step)
	for _, s := range stage.Lines {
		if strings.HasPrefix(s, "[TimeConsuming]") {
			continue
		}
		if strings.HasPrefix(s, "[Pipeline] Step: ") {
			stepName := strings.TrimPrefix(s, "[Pipeline] Step: ")
			stepNameList = append(stepNameList, stepName)
			stepMap[stepName] = &Step{Name: stepName}
			continue
		}
		if len(stepNameList) == 0 {
			continue
		}
		stepName := stepNameList[len(stepNameList)-1]
		step := stepMap[stepName]
		step.Lines = append(step.Lines, s)
	}
	var result []*Step
	for _, name := range stepNameList {
		result = append(result, stepMap[name])
	}
	return result
}
