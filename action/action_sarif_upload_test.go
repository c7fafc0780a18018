package action

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
	ass "gotest.tools/v3/assert"
)

func newStackContext(t *testing.T, workdir string, extra map[string]interface{}) context.Context {
	t.Helper()
	stack := map[string]interface{}{
		"name":    "trivy-scan",
		"id":      "1",
		"workdir": workdir,
		"env":     []string{},
		"secrets": map[string]string{},
	}
	for k, v := range extra {
		stack[k] = v
	}
	return context.WithValue(context.Background(), STACK, stack)
}

func newTestStepOutput(t *testing.T) *output.Output {
	t.Helper()
	return output.New("trivy-scan", 1)
}

func Test_SarifUpload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WARDEN_FINDINGS_TOKEN", "findings-token")

	var gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"upload-42"}`))
	}))
	defer server.Close()

	workdir := t.TempDir()
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "trivy-results.sarif"), []byte(trivySarif), 0644))

	ctx := newStackContext(t, workdir, map[string]interface{}{"findingsEndpoint": server.URL})
	step := model.Step{
		Uses: "sarif-upload@v1",
		With: map[string]string{"sarif-file": "trivy-results.sarif", "category": "trivy-fs"},
	}
	a := NewSarifUploadAction(step, ctx, newTestStepOutput(t))

	ass.NilError(t, a.Pre())
	result, err := a.Hook()
	ass.NilError(t, err)

	assert.Equal(t, "Bearer findings-token", gotAuth)
	assert.Equal(t, "trivy-fs", gotBody["category"])
	decoded, err := base64.StdEncoding.DecodeString(gotBody["sarif"])
	ass.NilError(t, err)
	assert.Equal(t, trivySarif, string(decoded))

	ass.Equal(t, 1, len(result.FindingsUploads))
	assert.Equal(t, "Trivy", result.FindingsUploads[0].Tool)
	assert.Equal(t, "upload-42", result.FindingsUploads[0].UploadId)
}

// token 所在的环境变量名跟着节点配置走
func Test_SarifUpload_CustomTokenEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ORG_FINDINGS_TOKEN", "org-token")

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"upload-7"}`))
	}))
	defer server.Close()

	workdir := t.TempDir()
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "report.sarif"), []byte(trivySarif), 0644))

	ctx := newStackContext(t, workdir, map[string]interface{}{
		"findingsEndpoint": server.URL,
		"findingsTokenEnv": "ORG_FINDINGS_TOKEN",
	})
	step := model.Step{With: map[string]string{"sarif-file": "report.sarif"}}
	a := NewSarifUploadAction(step, ctx, newTestStepOutput(t))

	_, err := a.Hook()
	ass.NilError(t, err)
	assert.Equal(t, "Bearer org-token", gotAuth)
}

func Test_SarifUpload_NoEndpoint(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	workdir := t.TempDir()

	ctx := newStackContext(t, workdir, nil)
	step := model.Step{With: map[string]string{"sarif-file": "trivy-results.sarif"}}
	a := NewSarifUploadAction(step, ctx, newTestStepOutput(t))

	_, err := a.Hook()
	assert.Error(t, err)
}

func Test_SarifUpload_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	a := NewSarifUploadAction(model.Step{}, context.Background(), nil)
	assert.Error(t, a.Pre())
}

func Test_SarifUpload_RejectedUpload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	workdir := t.TempDir()
	ass.NilError(t, os.WriteFile(filepath.Join(workdir, "report.sarif"), []byte(trivySarif), 0644))

	ctx := newStackContext(t, workdir, map[string]interface{}{"findingsEndpoint": server.URL})
	step := model.Step{With: map[string]string{"sarif-file": "report.sarif"}}
	a := NewSarifUploadAction(step, ctx, newTestStepOutput(t))

	_, err := a.Hook()
	assert.Error(t, err)
}
