package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/output"
)

// IpfsAction 把 run 收集到的产物发布到 ipfs，便于跨环境取回
type IpfsAction struct {
	path    string
	api     string
	gateway string
	ctx     context.Context
	output  *output.Output
}

func NewIpfsAction(step model.Step, ctx context.Context, output *output.Output) *IpfsAction {
	return &IpfsAction{
		path:    step.With["path"],
		gateway: step.With["gateway"],
		api:     step.With["api"],
		ctx:     ctx,
		output:  output,
	}
}

func (a *IpfsAction) Pre() error {
	if a.api == "" {
		return errors.New("ipfs-publish step needs with.api")
	}
	return nil
}

func (a *IpfsAction) Hook() (*model.ActionResult, error) {
	jobName, err := stackString(a.ctx, "name")
	if err != nil {
		return nil, err
	}
	jobId, err := stackString(a.ctx, "id")
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(jobId)
	if err != nil {
		return nil, err
	}

	// 不指定 path 时整个 artifactory 目录上链
	source := a.path
	if source == "" {
		source = job.ArtifactoryDir(jobName, id)
	} else if !filepath.IsAbs(source) {
		workdir, err := stackString(a.ctx, "workdir")
		if err != nil {
			return nil, err
		}
		source = filepath.Join(workdir, source)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}

	sh := shell.NewShell(a.api)
	var cid string
	if info.IsDir() {
		cid, err = sh.AddDir(source)
	} else {
		f, openErr := os.Open(source)
		if openErr != nil {
			return nil, openErr
		}
		defer f.Close()
		cid, err = sh.Add(f)
	}
	if err != nil {
		return nil, err
	}

	url := cid
	if a.gateway != "" {
		url = fmt.Sprintf("%s/ipfs/%s", strings.TrimSuffix(a.gateway, "/"), cid)
	}
	a.output.WriteLine("published to ipfs: " + url)
	logger.Infof("ipfs publish done, job %s(%d), cid %s", jobName, id, cid)

	return &model.ActionResult{
		Artifactorys: []model.Artifactory{
			{
				Name: filepath.Base(source),
				Url:  url,
			},
		},
	}, nil
}

func (a *IpfsAction) Post() error {
	return nil
}
