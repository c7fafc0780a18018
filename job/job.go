package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
	"github.com/warden-shared/warden-engine/utils"
	"gopkg.in/yaml.v3"
)

// SaveJob 保存 Job yaml 文件
func SaveJob(name string, yaml string) error {
	return saveStringToFile(getJobFilePath(name), yaml)
}

func SaveJobParams(name string, params map[string]string) error {
	job, err := GetJobObject(name)
	if err != nil {
		return err
	}
	job.Parameter = params
	content, err := yaml.Marshal(job)
	if err != nil {
		return err
	}
	return SaveJob(job.Name, string(content))
}

// GetJob get job yaml string
func GetJob(name string) (string, error) {
	return readStringFromFile(getJobFilePath(name))
}

// UpdateJob update job yaml file
func UpdateJob(oldName string, newName string, yaml string) error {
	err := renameFile(getJobFilePath(oldName), getJobFilePath(newName))
	if err != nil {
		return err
	}
	return SaveJob(newName, yaml)
}

// DeleteJob delete job yaml file
func DeleteJob(name string) error {
	return deleteFile(getJobFilePath(name))
}

// SaveJobDetail save run record
func SaveJobDetail(name string, job *model.JobDetail) error {
	data, err := yaml.Marshal(job)
	if err != nil {
		logger.Errorf("serializes yaml failed: %s", err)
		return err
	}
	return saveStringToFile(getJobDetailFilePath(name, job.Id), string(data))
}

// UpdateJobDetail update run record yaml file
func UpdateJobDetail(name string, job *model.JobDetail) error {
	return SaveJobDetail(name, job)
}

// GetJobDetail get run record
func GetJobDetail(name string, id int) (*model.JobDetail, error) {
	var jobDetail model.JobDetail
	jobDetailString, err := readStringFromFile(getJobDetailFilePath(name, id))
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal([]byte(jobDetailString), &jobDetail)
	if err != nil {
		logger.Errorf("get job,deserialization run record failed: %s", err.Error())
		return nil, err
	}

	runningStage := -1
	for index, stage := range jobDetail.Stages {
		if stage.Status == model.STATUS_RUNNING {
			runningStage = index
		}
	}

	if runningStage >= 0 && runningStage < len(jobDetail.Stages) {
		jobDetail.Stages[runningStage].Duration = time.Since(jobDetail.Stages[runningStage].StartTime).Milliseconds()
	}
	return &jobDetail, nil
}

// JobList job list
func JobList(keyword string, page, pageSize int) (*model.JobPage, error) {
	var jobPage model.JobPage
	var jobs []model.JobVo
	jobsDir := getJobFilePath("")
	if !isFileExist(jobsDir) {
		return nil, fmt.Errorf("jobs folder not exist: %s", jobsDir)
	}

	files, err := os.ReadDir(jobsDir)
	if err != nil {
		logger.Errorf("failed to read jobs folder: %s", err.Error())
		return nil, err
	}
	for _, file := range files {
		if keyword != "" && !strings.Contains(file.Name(), keyword) {
			continue
		}
		ymlPath := getJobFilePath(file.Name())
		if !isFileExist(ymlPath) {
			logger.Warnf("job file not exist: %s", ymlPath)
			continue
		}
		fileContent, err := os.ReadFile(ymlPath)
		if err != nil {
			logger.Error("get job read file failed", err.Error())
			continue
		}
		var jobData model.Job
		var jobVo model.JobVo
		err = yaml.Unmarshal(fileContent, &jobData)
		if err != nil {
			logger.Error("get job,deserialization job file failed", err.Error())
			continue
		}
		copier.Copy(&jobVo, &jobData)
		updateJobInfo(&jobVo)
		if info, err := os.Stat(ymlPath); err == nil {
			jobVo.CreateTime = info.ModTime()
		}
		jobs = append(jobs, jobVo)
	}
	sort.Sort(model.JobVoTimeDecrement(jobs))
	pageNum, size, start, end := utils.SlicePage(page, pageSize, len(jobs))
	jobPage.Page = pageNum
	jobPage.PageSize = size
	jobPage.Total = len(jobs)
	jobPage.Data = jobs[start:end]
	return &jobPage, nil
}

// JobDetailList run record list
func JobDetailList(name string, page, pageSize int) (*model.JobDetailPage, error) {
	var jobDetailPage model.JobDetailPage
	var jobDetails []model.JobDetail
	jobDetailDir := getJobDetailFileDir(name)
	if !isFileExist(jobDetailDir) {
		logger.Error("runs folder does not exist")
		return nil, fmt.Errorf("runs folder does not exist")
	}
	files, err := os.ReadDir(jobDetailDir)
	if err != nil {
		logger.Error("failed to read runs folder", err.Error())
		return nil, err
	}
	for _, file := range files {
		ymlPath := filepath.Join(jobDetailDir, file.Name())
		fileContent, err := os.ReadFile(ymlPath)
		if err != nil {
			logger.Error("get run record read file failed", err.Error())
			continue
		}
		var jobDetailData model.JobDetail
		err = yaml.Unmarshal(fileContent, &jobDetailData)
		if err != nil {
			logger.Error("get run record,deserialization failed", err.Error())
			continue
		}
		jobDetails = append(jobDetails, jobDetailData)
	}
	sort.Sort(model.JobDetailDecrement(jobDetails))
	pageNum, size, start, end := utils.SlicePage(page, pageSize, len(jobDetails))
	jobDetailPage.Page = pageNum
	jobDetailPage.PageSize = size
	jobDetailPage.Total = len(jobDetails)
	jobDetailPage.Data = jobDetails[start:end]
	return &jobDetailPage, nil
}

// DeleteJobDetail delete run record
func DeleteJobDetail(name string, id int) error {
	jobDetailFilePath := getJobDetailFilePath(name, id)
	if !isFileExist(jobDetailFilePath) {
		logger.Error("delete run record failed, file not exist")
		return fmt.Errorf("delete run record failed, file not exist")
	}
	return deleteFile(jobDetailFilePath)
}

// CreateJobDetail 为一次触发分配 run id 并落盘初始记录
func CreateJobDetail(name string, triggerMode string) (*model.JobDetail, error) {
	jobData, err := GetJobObject(name)
	if err != nil {
		return nil, err
	}
	var jobDetail model.JobDetail
	jobDetailFileDir := getJobDetailFileDir(name)
	err = createDirIfNotExist(jobDetailFileDir)
	if err != nil {
		logger.Error("create runs dir failed", err.Error())
		return nil, err
	}
	files, err := os.ReadDir(jobDetailFileDir)
	if err != nil {
		logger.Error("read runs dir failed", err.Error())
		return nil, err
	}
	var ids []int
	for _, file := range files {
		index := strings.Index(file.Name(), ".")
		id, err := strconv.Atoi(file.Name()[0:index])
		if err != nil {
			logger.Error("string to int failed", err.Error())
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
		jobDetail.Id = ids[0] + 1
	} else {
		jobDetail.Id = 1
	}
	stageDetail, err := jobData.StageSort()
	if err != nil {
		return nil, err
	}
	jobDetail.Job = *jobData
	jobDetail.Status = model.STATUS_NOTRUN
	jobDetail.StartTime = time.Now()
	jobDetail.Stages = stageDetail
	jobDetail.TriggerMode = triggerMode
	return &jobDetail, SaveJobDetail(name, &jobDetail)
}

// GetJobLog 获取 run 日志
func GetJobLog(name string, id int) (*model.JobLog, error) {
	logPath := getJobDetailLogPath(name, id)
	fileLog, err := output.ParseLogFile(logPath)
	if err != nil {
		logger.Errorf("parse log file failed, %v", err)
		return nil, err
	}
	jobLog := &model.JobLog{
		StartTime: fileLog.StartTime,
		Duration:  fileLog.Duration,
		Content:   strings.Join(fileLog.Lines, "\r"),
		LastLine:  len(fileLog.Lines),
	}
	return jobLog, nil
}

// GetJobLogString 获取 run 日志字符串
func GetJobLogString(name string, id int) (string, error) {
	return readStringFromFile(getJobDetailLogPath(name, id))
}

// SaveJobLogString 保存 run 日志字符串，master 侧接收 worker 回传时用
func SaveJobLogString(name string, id int, content string) error {
	return saveStringToFile(getJobDetailLogPath(name, id), content)
}

// GetJobStageLog 获取某个 stage 的日志
func GetJobStageLog(name string, execId int, stageName string, start int) (*model.JobStageLog, error) {
	logPath := getJobDetailLogPath(name, execId)
	fileLog, err := output.ParseLogFile(logPath)
	if err != nil {
		logger.Errorf("parse log file failed, %v", err)
		return nil, err
	}

	detail, err := GetJobDetail(name, execId)
	if err != nil {
		return nil, err
	}

	var stageDetail model.StageDetail
	for _, stage := range detail.Stages {
		if stage.Name == stageName {
			stageDetail = stage
		}
	}

	for _, stage := range fileLog.Stages {
		if stage.Name == stageName {
			var content string
			if start >= 0 && start <= len(stage.Lines) {
				content = strings.Join(stage.Lines[start:], "\r")
			}

			return &model.JobStageLog{
				StartTime: stage.StartTime,
				Duration:  stage.Duration,
				Content:   content,
				LastLine:  len(stage.Lines),
				End:       stageDetail.Status == model.STATUS_SUCCESS || stageDetail.Status == model.STATUS_FAIL,
			}, nil
		}
	}
	return nil, fmt.Errorf("stage %s not found", stageName)
}

// GetJobStepLog 获取某个 step 的日志
func GetJobStepLog(name string, execId int, stageName, stepName string) (*output.Step, error) {
	logPath := getJobDetailLogPath(name, execId)
	fileLog, err := output.ParseLogFile(logPath)
	if err != nil {
		return nil, err
	}
	for i := range fileLog.Stages {
		if fileLog.Stages[i].Name != stageName {
			continue
		}
		for _, step := range output.ParseStageSteps(&fileLog.Stages[i]) {
			if step.Name == stepName {
				return step, nil
			}
		}
		return nil, fmt.Errorf("step %s not found in stage %s", stepName, stageName)
	}
	return nil, fmt.Errorf("stage %s not found", stageName)
}

// 就地更新 job 列表行的最近一次 run 信息
func updateJobInfo(jobData *model.JobVo) error {
	jobDetailDir := getJobDetailFileDir(jobData.Name)
	if !isFileExist(jobDetailDir) {
		return fmt.Errorf("runs folder does not exist")
	}
	files, err := os.ReadDir(jobDetailDir)
	if err != nil {
		logger.Error("failed to read runs folder", err.Error())
		return err
	}
	var ids []int
	for _, file := range files {
		index := strings.Index(file.Name(), ".")
		id, err := strconv.Atoi(file.Name()[0:index])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
		jobDetail, err := GetJobDetail(jobData.Name, ids[0])
		if err != nil {
			logger.Errorf("get run record failed, %s", err)
			return err
		}
		jobData.Duration = jobDetail.Duration
		jobData.Status = jobDetail.Status
		jobData.TriggerMode = jobDetail.TriggerMode
		jobData.StartTime = jobDetail.StartTime
		jobData.RunDetailId = jobDetail.Id
		jobData.Error = jobDetail.Error
	}
	return nil
}

// GetJobObject 获取 job 对象
func GetJobObject(name string) (*model.Job, error) {
	var jobData model.Job
	fileContent, err := os.ReadFile(getJobFilePath(name))
	if err != nil {
		logger.Error("get job read file failed", err.Error())
		return nil, err
	}
	err = yaml.Unmarshal(fileContent, &jobData)
	if err != nil {
		logger.Error("get job,deserialization job file failed", err.Error())
		return nil, err
	}
	return &jobData, nil
}

// GetJobObjectFromString 从 yaml 字符串解析 job 对象
func GetJobObjectFromString(yamlString string) (*model.Job, error) {
	var jobData model.Job
	err := yaml.Unmarshal([]byte(yamlString), &jobData)
	if err != nil {
		return nil, err
	}
	return &jobData, nil
}

// ArtifactoryDir 某次 run 的构建物目录
func ArtifactoryDir(name string, id int) string {
	return filepath.Join(utils.DefaultConfigDir(), consts.JOB_DIR_NAME, name, consts.ArtifactoryDir, strconv.Itoa(id))
}

// ReportDir 某次 run 的报告目录
func ReportDir(name string, id int) string {
	return filepath.Join(utils.DefaultConfigDir(), consts.JOB_DIR_NAME, name, consts.ReportDir, strconv.Itoa(id))
}
