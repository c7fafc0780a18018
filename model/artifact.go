package model

/*
Artifactory 一次 run 产出的构建物
*/
type Artifactory struct {
	Name string `yaml:"name" json:"name"`
	Url  string `yaml:"url" json:"url"`
}

/*
Report 扫描或测试报告
*/
type Report struct {
	Id      int    `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Url     string `yaml:"url" json:"url"`
	Tool    string `yaml:"tool" json:"tool"`
	Type    int    `yaml:"type" json:"type"` // 1 构建物报告，2 扫描报告，3 findings 上报回执，4 摘要
	Content string `yaml:"content,omitempty" json:"content"`
}

// FindingsUpload findings 系统的上报回执
type FindingsUpload struct {
	Tool     string `yaml:"tool" json:"tool"`
	UploadId string `yaml:"uploadId" json:"uploadId"`
	Url      string `yaml:"url" json:"url"`
}

// SbomSubmission 依赖清单提交回执
type SbomSubmission struct {
	Format string `yaml:"format" json:"format"`
	Url    string `yaml:"url" json:"url"`
}

type ActionResult struct {
	CodeInfo        string           `yaml:"codeInfo,omitempty" json:"codeInfo"`
	Artifactorys    []Artifactory    `yaml:"artifactorys,omitempty" json:"artifactorys"`
	Reports         []Report         `yaml:"reports,omitempty" json:"reports"`
	FindingsUploads []FindingsUpload `yaml:"findingsUploads,omitempty" json:"findingsUploads"`
	SbomSubmissions []SbomSubmission `yaml:"sbomSubmissions,omitempty" json:"sbomSubmissions"`
}
