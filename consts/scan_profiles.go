package consts

type ScanProfile struct {
	Name   string
	Tool   string
	Format string
}

func scanProfile(name, tool, format string) ScanProfile {
	return ScanProfile{
		Name:   name,
		Tool:   tool,
		Format: format,
	}
}

var (
	FilesystemVulnerabilityReport = scanProfile("Filesystem Vulnerability Report", "trivy", "sarif")
	DependencyGraphSbom           = scanProfile("Dependency Graph SBOM", "trivy", "github")
	SecurityLintReport            = scanProfile("Security Lint Report", "bandit", "txt")
	ThirdPartyScanReport          = scanProfile("Third Party Scan Report", "snyk", "sarif")
	RegressionTestReport          = scanProfile("Regression Test Report", "pytest", "xml")
)

type ScanResultDetails struct {
	Result  string
	message string
}

func scanResultDetails(result string, message string) ScanResultDetails {
	return ScanResultDetails{
		Result:  result,
		message: message,
	}
}

var (
	ScanPassed = scanResultDetails("Passed", "no findings at or above the severity gate")
	ScanFailed = scanResultDetails("Failed", "findings at or above the severity gate")
)
