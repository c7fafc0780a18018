package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const trivySarif = `{
  "version": "2.1.0",
  "runs": [
    {
      "tool": {"driver": {"name": "Trivy"}},
      "results": [
        {"ruleId": "CVE-2023-0001"},
        {"ruleId": "CVE-2023-0002"},
        {"ruleId": "CVE-2024-1234"}
      ]
    }
  ]
}`

const trivyJson = `{
  "Results": [
    {"Target": "go.sum", "Vulnerabilities": [{"VulnerabilityID": "CVE-2023-0001"}]},
    {"Target": "requirements.txt", "Vulnerabilities": [
      {"VulnerabilityID": "CVE-2023-0002"},
      {"VulnerabilityID": "CVE-2024-1234"}
    ]},
    {"Target": "Dockerfile"}
  ]
}`

func Test_CountTrivyFindings_Sarif(t *testing.T) {
	assert.Equal(t, 3, CountTrivyFindings("sarif", []byte(trivySarif)))
	assert.Equal(t, 0, CountTrivyFindings("sarif", []byte(`{"runs":[{"results":[]}]}`)))
}

func Test_CountTrivyFindings_Json(t *testing.T) {
	assert.Equal(t, 3, CountTrivyFindings("json", []byte(trivyJson)))
	assert.Equal(t, 0, CountTrivyFindings("json", []byte(`{"Results":[]}`)))
}

func Test_CountTrivyFindings_UnknownFormat(t *testing.T) {
	assert.Equal(t, 0, CountTrivyFindings("table", []byte("whatever")))
}
