package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/scheduler"
)

// JobsCmd talks to a running scheduler's admin API
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control jobs via the admin API",
	Long: `Inspect and control jobs on a running scheduler.

Examples:
  schedulerd jobs ls
  schedulerd jobs trigger cleanup-sessions --wait
  schedulerd jobs disable weekly-digest`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered jobs",
	RunE:  runJobsLs,
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger <job-name>",
	Short: "Run a job outside its schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsTrigger,
}

var jobsEnableCmd = &cobra.Command{
	Use:   "enable <job-name>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runJobsToggle(args[0], true) },
}

var jobsDisableCmd = &cobra.Command{
	Use:   "disable <job-name>",
	Short: "Disable a job (its timer stops, history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runJobsToggle(args[0], false) },
}

var (
	jobsAddrFlag    string
	triggerWaitFlag bool
)

func init() {
	JobsCmd.PersistentFlags().StringVar(&jobsAddrFlag, "addr", "", "Admin API address (default http://localhost:<configured port>)")
	jobsTriggerCmd.Flags().BoolVar(&triggerWaitFlag, "wait", false, "Wait for the execution to finish and print its result")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsTriggerCmd)
	JobsCmd.AddCommand(jobsEnableCmd)
	JobsCmd.AddCommand(jobsDisableCmd)
}

func adminBaseURL() string {
	if jobsAddrFlag != "" {
		return strings.TrimRight(jobsAddrFlag, "/")
	}
	port := config.DefaultServerPort
	if cfg, err := config.Load(); err == nil {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func adminRequest(method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, adminBaseURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "is the scheduler running? request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, errors.Newf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, errors.Newf("admin API returned %s", resp.Status)
	}
	return data, nil
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	data, err := adminRequest(http.MethodGet, "/api/jobs", nil)
	if err != nil {
		return err
	}

	var list struct {
		Jobs []*scheduler.JobStatus `json:"jobs"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.Wrap(err, "failed to parse job list")
	}

	if len(list.Jobs) == 0 {
		fmt.Println("No jobs registered")
		return nil
	}

	fmt.Printf("%-28s %-16s %-8s %-20s %s\n", "NAME", "SCHEDULE", "ENABLED", "NEXT FIRE", "RUNS (ok/fail)")
	for _, status := range list.Jobs {
		def := status.Definition
		nextFire := "-"
		if status.NextFireAt != nil {
			nextFire = status.NextFireAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-28s %-16s %-8t %-20s %d (%d/%d)\n",
			def.Name, def.CronExpression, def.Enabled, nextFire,
			def.TotalRuns, def.SuccessfulRuns, def.FailedRuns)
	}
	return nil
}

func runJobsTrigger(cmd *cobra.Command, args []string) error {
	name := args[0]

	path := fmt.Sprintf("/api/jobs/%s/trigger", name)
	if triggerWaitFlag {
		path += "?wait=true"
	}

	data, err := adminRequest(http.MethodPost, path, map[string]string{"source": "manual"})
	if err != nil {
		return err
	}

	if !triggerWaitFlag {
		var resp struct {
			ExecutionID string `json:"execution_id"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return errors.Wrap(err, "failed to parse trigger response")
		}
		fmt.Printf("Triggered %s (execution %s)\n", name, resp.ExecutionID)
		return nil
	}

	var resp struct {
		ExecutionID string               `json:"execution_id"`
		Result      *scheduler.JobResult `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return errors.Wrap(err, "failed to parse trigger response")
	}

	if resp.Result != nil && resp.Result.Success {
		fmt.Printf("%s succeeded (execution %s): %d processed, %d succeeded, %d failed\n",
			name, resp.ExecutionID,
			resp.Result.ItemsProcessed, resp.Result.ItemsSucceeded, resp.Result.ItemsFailed)
		return nil
	}

	errorMsg := "unknown error"
	if resp.Result != nil && resp.Result.Error != "" {
		errorMsg = resp.Result.Error
	}
	return errors.Newf("%s failed (execution %s): %s", name, resp.ExecutionID, errorMsg)
}

func runJobsToggle(name string, enable bool) error {
	action := "disable"
	if enable {
		action = "enable"
	}

	_, err := adminRequest(http.MethodPost, fmt.Sprintf("/api/jobs/%s/%s", name, action), nil)
	if err != nil {
		return err
	}

	fmt.Printf("Job %s %sd\n", name, action)
	return nil
}
