package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	engine "github.com/warden-shared/warden-engine"
	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/schema"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "run the master: node api, dispatcher and schedule trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		e, err := engine.NewMasterEngine(cfg)
		if err != nil {
			return err
		}

		if err := seedPipelines(e, cfg); err != nil {
			logger.Warnf("seed pipelines: %v", err)
		}
		if err := e.LoadSchedules(); err != nil {
			return err
		}

		logger.Infof("master up, listening on :%d", cfg.ListenPort)
		select {}
	},
}

// seedPipelines 把 pipelines 目录下的 yaml 导入成 job，已存在的跳过
func seedPipelines(e engine.Engine, cfg *config.Config) error {
	dir := filepath.Join(cfg.DataDir, "pipelines")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		name := entry.Name()[:len(entry.Name())-len(ext)]
		if _, err := e.GetJob(name); err == nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := validator.ValidateYaml(string(content)); err != nil {
			return fmt.Errorf("pipeline %s: %w", entry.Name(), err)
		}
		jobObj, err := job.GetJobObjectFromString(string(content))
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", entry.Name(), err)
		}
		if err := schema.CheckSecretsDeclared(jobObj, cfg.Secrets.Allowed); err != nil {
			return err
		}
		if err := schema.CheckTimeoutBudget(jobObj, cfg.Weekly.ExpectedSuiteMinutes); err != nil {
			return err
		}
		if err := e.CreateJob(name, string(content)); err != nil {
			return err
		}
		logger.Infof("imported pipeline %s", name)
	}
	return nil
}
