package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/maasclient"
	"github.com/maas-mcp/bridge/internal/progress"
)

// deployPollInterval and deployMaxPolls bound how long a deploy call will
// poll MAAS for completion before giving up: 60 polls at 5s apart is 5
// minutes, generous for a machine netboot-and-install cycle without
// holding the operation open indefinitely.
const (
	deployPollInterval = 5 * time.Second
	deployMaxPolls     = 60
)

// statusDeployed and statusFailed are the MAAS status_name values this
// tool treats as terminal.
const (
	statusDeployed = "Deployed"
	statusFailed   = "Failed deployment"
)

// DeployMachineTool starts deployment of an already-allocated machine and
// polls MAAS until it reaches a terminal status, reporting progress along
// the way. It is the bridge's canonical long-running tool.
type DeployMachineTool struct {
	client *maasclient.Client
}

func NewDeployMachineTool(client *maasclient.Client) *DeployMachineTool {
	return &DeployMachineTool{client: client}
}

func (t *DeployMachineTool) Name() string          { return "maas_deploy_machine" }
func (t *DeployMachineTool) Description() string   { return "Deploy an allocated machine and track progress to completion" }
func (t *DeployMachineTool) LongRunning() bool      { return true }
func (t *DeployMachineTool) Timeout() time.Duration { return 6 * time.Minute }

func (t *DeployMachineTool) Schema() dispatch.Schema {
	return dispatch.Schema{Fields: []dispatch.Field{
		{Name: "system_id", Type: dispatch.FieldString, Required: true},
		{Name: "distro_series", Type: dispatch.FieldString},
	}}
}

func (t *DeployMachineTool) Execute(ctx context.Context, reporter progress.Reporter, params map[string]any) (any, error) {
	systemID := params["system_id"].(string)
	distroSeries, _ := params["distro_series"].(string)

	_ = reporter.Progress(0, "requesting deployment", nil)
	if _, err := t.client.DeployMachine(ctx, systemID, distroSeries); err != nil {
		return nil, dispatch.WrapUpstreamError(t.Name(), err)
	}
	_ = reporter.Progress(10, "deployment requested", nil)

	for poll := 0; poll < deployMaxPolls; poll++ {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, dispatch.NewCancelledError(t.Name(), ctx.Err())
			}
			return nil, dispatch.NewTimeoutError(t.Name(), ctx.Err())
		case <-time.After(deployPollInterval):
		}

		machine, err := t.client.GetMachine(ctx, systemID)
		if err != nil {
			return nil, dispatch.WrapUpstreamError(t.Name(), err)
		}

		// Linear progress mapping across the poll window: 15 at the first
		// poll, 70 at the last, so the caller never sees progress stall at
		// a single value for the whole deployment.
		pct := 15 + int(float64(poll+1)/float64(deployMaxPolls)*55)
		_ = reporter.Progress(pct, fmt.Sprintf("status: %s", machine.Status), map[string]any{
			"power_state": machine.PowerState,
		})

		switch machine.Status {
		case statusDeployed:
			return machine, nil
		case statusFailed:
			return nil, dispatch.NewUpstreamError(t.Name(), fmt.Errorf("deployment failed: status=%s", machine.Status))
		}
	}

	return nil, dispatch.NewTimeoutError(t.Name(), fmt.Errorf("deployment did not reach a terminal status after %d polls", deployMaxPolls))
}
