package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"github.com/warden-shared/warden-engine/config"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/transport/api"
)

func managementBase() (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	addr := masterAddr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.ListenPort)
	}
	return "http://" + addr + "/api/v1", nil
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <job>",
	Short: "trigger a run of a job on the master",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := managementBase()
		if err != nil {
			return err
		}
		var detail model.JobDetail
		resp, err := resty.New().SetTimeout(30 * time.Second).R().
			SetResult(&detail).
			Post(base + "/jobs/" + args[0] + "/runs")
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusCreated {
			return fmt.Errorf("trigger failed: %s: %s", resp.Status(), resp.String())
		}
		fmt.Printf("run %d of %s started\n", detail.Id, args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list jobs and their schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := managementBase()
		if err != nil {
			return err
		}
		client := resty.New().SetTimeout(30 * time.Second)

		var page model.JobPage
		resp, err := client.R().SetResult(&page).Get(base + "/jobs")
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("list failed: %s", resp.Status())
		}

		var schedules []api.ScheduleSummary
		if resp, err := client.R().SetResult(&schedules).Get(base + "/schedules"); err != nil || resp.StatusCode() != http.StatusOK {
			schedules = nil
		}
		nextRuns := make(map[string]string, len(schedules))
		for _, s := range schedules {
			nextRuns[s.JobName] = s.NextRun
		}

		fmt.Printf("%-24s %-10s %-10s %-6s %s\n", "NAME", "STATUS", "TRIGGER", "RUN", "NEXT RUN")
		for _, j := range page.Data {
			fmt.Printf("%-24s %-10s %-10s %-6d %s\n",
				j.Name, j.Status.String(), j.TriggerMode, j.RunDetailId, nextRuns[j.Name])
		}
		return nil
	},
}
