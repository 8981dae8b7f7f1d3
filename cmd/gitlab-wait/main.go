// Command gitlab-wait blocks until a pipeline finishes and reports the
// outcome. Exit code 0 for success, 2 for a local timeout, 1 otherwise.
//
// Configuration comes from the environment (GITLAB_TOKEN, GITLAB_BASE_URL,
// optional .env file); the pipeline is named on the command line:
//
//	gitlab-wait -project group/app -pipeline 12345 -interval 10s -timeout 30m
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/qodev/gitlab-api-client/pkg/gitlab"
	"github.com/qodev/gitlab-api-client/pkg/logging"
)

func main() {
	var (
		project    = flag.String("project", "", "project ID or namespace/project path")
		pipelineID = flag.Int("pipeline", 0, "pipeline ID to wait for")
		interval   = flag.Duration("interval", 10*time.Second, "poll interval")
		timeout    = flag.Duration("timeout", time.Hour, "total wait timeout")
		failedLogs = flag.Bool("failed-logs", true, "include log tails of failed jobs")
		pretty     = flag.Bool("pretty", false, "human-readable log output")
	)
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Pretty = *pretty
	logger := logging.Setup(logCfg)

	if *project == "" || *pipelineID == 0 {
		flag.Usage()
		os.Exit(1)
	}

	client, err := gitlab.NewFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("Client configuration failed")
		os.Exit(1)
	}

	ctx := context.Background()
	result, err := client.WaitForPipeline(ctx, *project, *pipelineID, gitlab.WaitOptions{
		Interval:          *interval,
		Timeout:           *timeout,
		IncludeFailedLogs: *failedLogs,
	})
	if err != nil {
		logger.Error().Err(err).
			Str("project", *project).
			Int("pipeline_id", *pipelineID).
			Msg("Wait aborted")
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	switch result.FinalStatus {
	case gitlab.StatusSuccess:
		os.Exit(0)
	case gitlab.StatusTimeout:
		logger.Warn().
			Int("checks", result.Checks).
			Dur("elapsed", result.Elapsed).
			Msg("Pipeline did not finish before the timeout")
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
