package main

import (
	"github.com/spf13/cobra"
	engine "github.com/warden-shared/warden-engine"
	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "run a worker node attached to a master",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if _, err := engine.NewWorkerEngine(cfg); err != nil {
			return err
		}
		logger.Infof("worker up, master %s, labels %v", cfg.MasterAddress, cfg.NodeLabels)
		select {}
	},
}
