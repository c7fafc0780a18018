package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/job"
	"github.com/warden-shared/warden-engine/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline.yml>",
	Short: "validate a pipeline file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		validator, err := schema.NewValidator()
		if err != nil {
			return err
		}
		if err := validator.ValidateYaml(string(content)); err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		jobObj, err := job.GetJobObjectFromString(string(content))
		if err != nil {
			return err
		}
		if err := schema.CheckSecretsDeclared(jobObj, cfg.Secrets.Allowed); err != nil {
			return err
		}
		if err := schema.CheckTimeoutBudget(jobObj, cfg.Weekly.ExpectedSuiteMinutes); err != nil {
			return err
		}

		fmt.Printf("%s is valid\n", args[0])
		return nil
	},
}
