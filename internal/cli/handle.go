package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/spf13/cobra"

	"github.com/sagestack-io/sagestack/handlers/codeeditor"
	"github.com/sagestack-io/sagestack/handlers/lifecycleconfig"
	"github.com/sagestack-io/sagestack/handlers/vpclookup"
	"github.com/sagestack-io/sagestack/internal/cfn"
	"github.com/sagestack-io/sagestack/internal/handler"
	"github.com/sagestack-io/sagestack/internal/logging"
)

var (
	handleRegion    string
	handleNoRespond bool
)

var handleCmd = &cobra.Command{
	Use:   "handle [event.json]",
	Short: "Handle a custom resource lifecycle event",
	Long: `Reads a CloudFormation custom resource event from a file (or stdin),
dispatches it to the handler registered for its resource type, and reports
the outcome to the event's response URL.

The command exits nonzero only when the event cannot be read or the outcome
cannot be delivered; a handler-level failure is itself a deliverable outcome.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHandle,
}

func init() {
	handleCmd.Flags().StringVar(&handleRegion, "region", "", "AWS region (defaults to the SDK config chain)")
	handleCmd.Flags().BoolVar(&handleNoRespond, "no-respond", false, "Print the outcome instead of sending it to the response URL")
}

func runHandle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := readEvent(args)
	if err != nil {
		return err
	}

	var event cfn.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if event.RequestType == "" {
		return fmt.Errorf("event is missing RequestType")
	}

	registry, err := buildRegistry(ctx)
	if err != nil {
		return err
	}

	outcome := registry.Dispatch(ctx, event)
	if outcome.Status == cfn.StatusFailed {
		logging.Warn("event failed", "reason", outcome.Reason)
	}

	if handleNoRespond {
		out, err := json.MarshalIndent(map[string]any{
			"Status":             outcome.Status,
			"Reason":             outcome.Reason,
			"PhysicalResourceId": outcome.PhysicalResourceID,
			"Data":               outcome.Data,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	if err := cfn.NewResponder().Send(ctx, event, outcome); err != nil {
		return fmt.Errorf("failed to report outcome: %w", err)
	}
	return nil
}

func readEvent(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	return raw, nil
}

func buildRegistry(ctx context.Context) (*handler.Registry, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if handleRegion != "" {
		opts = append(opts, awsconfig.WithRegion(handleRegion))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	smClient := sagemaker.NewFromConfig(cfg)

	registry := handler.NewRegistry()
	registry.Register(lifecycleconfig.ResourceType, lifecycleconfig.New(smClient))
	registry.Register(codeeditor.ResourceType, codeeditor.New(smClient))
	registry.Register(vpclookup.ResourceType, vpclookup.New(ec2.NewFromConfig(cfg)))
	return registry, nil
}
