// Package lifecycleconfig reconciles SageMaker Studio lifecycle configs for
// Code Editor apps. A Create provisions the config and enables Docker access
// on the owning domain; Update only permits no-op changes; Delete tolerates a
// config that is already gone.
package lifecycleconfig

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/sagestack-io/sagestack/internal/cfn"
	"github.com/sagestack-io/sagestack/internal/logging"
)

// ResourceType is the CloudFormation custom resource type served by this handler.
const ResourceType = "Custom::StudioLifecycleConfig"

// appType scopes every control-plane call; lifecycle config names are only
// unique per app type.
const appType = types.StudioLifecycleConfigAppTypeCodeEditor

// ErrUnsupportedUpdate is reported when an Update would change the idle
// timeout, which CloudFormation cannot apply in place.
var ErrUnsupportedUpdate = errors.New("the update of 'AutoStopIdleTimeInMinutes' is not supported; please recreate the stack instead")

// ControlPlane is the subset of the SageMaker API the handler calls,
// satisfied by *sagemaker.Client.
type ControlPlane interface {
	CreateStudioLifecycleConfig(ctx context.Context, params *sagemaker.CreateStudioLifecycleConfigInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateStudioLifecycleConfigOutput, error)
	DescribeStudioLifecycleConfig(ctx context.Context, params *sagemaker.DescribeStudioLifecycleConfigInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeStudioLifecycleConfigOutput, error)
	ListStudioLifecycleConfigs(ctx context.Context, params *sagemaker.ListStudioLifecycleConfigsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListStudioLifecycleConfigsOutput, error)
	DeleteStudioLifecycleConfig(ctx context.Context, params *sagemaker.DeleteStudioLifecycleConfigInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteStudioLifecycleConfigOutput, error)
	UpdateDomain(ctx context.Context, params *sagemaker.UpdateDomainInput, optFns ...func(*sagemaker.Options)) (*sagemaker.UpdateDomainOutput, error)
	DescribeDomain(ctx context.Context, params *sagemaker.DescribeDomainInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeDomainOutput, error)
}

// Handler reconciles one lifecycle-config custom resource per event.
type Handler struct {
	cp    ControlPlane
	sleep func(time.Duration)
}

func New(cp ControlPlane) *Handler {
	return &Handler{
		cp:    cp,
		sleep: time.Sleep,
	}
}

type properties struct {
	domainID    string
	configName  string
	idleMinutes int
}

func parseProperties(event cfn.Event) (properties, error) {
	domainID, err := event.StringProp("DomainId")
	if err != nil {
		return properties{}, err
	}
	name, err := event.StringProp("LifecycleConfigName")
	if err != nil {
		return properties{}, err
	}
	idleMinutes, err := event.IntProp("AutoStopIdleTimeInMinutes")
	if err != nil {
		return properties{}, err
	}
	if idleMinutes < 0 {
		return properties{}, fmt.Errorf("AutoStopIdleTimeInMinutes must not be negative, got %d", idleMinutes)
	}
	return properties{
		domainID: domainID,
		// The config namespace is case-insensitive at the control plane;
		// normalize so list comparisons match whatever case the caller used.
		configName:  strings.ToLower(name),
		idleMinutes: idleMinutes,
	}, nil
}

// Handle processes one lifecycle event. Failures of any branch are folded
// into a failure outcome carrying the event's declared physical id.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) cfn.Outcome {
	props, err := parseProperties(event)
	if err != nil {
		logging.Error("invalid lifecycle config properties", logging.Err(err))
		return cfn.Failure(event.PhysicalResourceID, err)
	}

	// The physical id encodes the idle timeout so CloudFormation detects a
	// changed timeout as a replacement, which the Update branch rejects.
	physicalID := fmt.Sprintf("%s_%d", props.domainID, props.idleMinutes)

	var outcome cfn.Outcome
	switch event.RequestType {
	case cfn.RequestCreate:
		outcome, err = h.create(ctx, props, physicalID)
	case cfn.RequestUpdate:
		outcome, err = h.update(ctx, event, props, physicalID)
	case cfn.RequestDelete:
		outcome, err = h.delete(ctx, props, physicalID)
	default:
		err = fmt.Errorf("unknown request type %q", event.RequestType)
	}
	if err != nil {
		logging.Error("lifecycle config event failed",
			"requestType", event.RequestType,
			"configName", props.configName,
			logging.Err(err))
		return cfn.Failure(event.PhysicalResourceID, err)
	}
	return outcome
}

func (h *Handler) create(ctx context.Context, props properties, physicalID string) (cfn.Outcome, error) {
	content := BuildContent(props.idleMinutes)
	resp, err := h.cp.CreateStudioLifecycleConfig(ctx, &sagemaker.CreateStudioLifecycleConfigInput{
		StudioLifecycleConfigName:    aws.String(props.configName),
		StudioLifecycleConfigContent: aws.String(base64.StdEncoding.EncodeToString([]byte(content))),
		StudioLifecycleConfigAppType: appType,
	})
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to create lifecycle config %q: %w", props.configName, err)
	}

	// No rollback if this fails: the config stays in place and the event
	// fails as a whole.
	if _, err := h.EnableDockerAccessAndWait(ctx, props.domainID); err != nil {
		return cfn.Outcome{}, err
	}

	logging.Info("lifecycle config created", "configName", props.configName)
	return cfn.Success(physicalID, map[string]any{
		"Arn": aws.ToString(resp.StudioLifecycleConfigArn),
	}), nil
}

func (h *Handler) update(ctx context.Context, event cfn.Event, props properties, physicalID string) (cfn.Outcome, error) {
	if physicalID != event.PhysicalResourceID {
		return cfn.Outcome{}, ErrUnsupportedUpdate
	}

	// Nothing mutable survives here: re-read the config and report it back
	// unchanged. Content drift is deliberately left alone.
	resp, err := h.cp.DescribeStudioLifecycleConfig(ctx, &sagemaker.DescribeStudioLifecycleConfigInput{
		StudioLifecycleConfigName: aws.String(props.configName),
	})
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to describe lifecycle config %q: %w", props.configName, err)
	}

	logging.Info("lifecycle config unchanged", "configName", props.configName)
	return cfn.Success(physicalID, map[string]any{
		"Arn": aws.ToString(resp.StudioLifecycleConfigArn),
	}), nil
}

func (h *Handler) delete(ctx context.Context, props properties, physicalID string) (cfn.Outcome, error) {
	exists, err := h.configExists(ctx, props.configName)
	if err != nil {
		return cfn.Outcome{}, err
	}

	if exists {
		_, err := h.cp.DeleteStudioLifecycleConfig(ctx, &sagemaker.DeleteStudioLifecycleConfigInput{
			StudioLifecycleConfigName: aws.String(props.configName),
		})
		if err != nil && !isNotFound(err) {
			return cfn.Outcome{}, fmt.Errorf("failed to delete lifecycle config %q: %w", props.configName, err)
		}
		if isNotFound(err) {
			logging.Info("lifecycle config deleted concurrently", "configName", props.configName)
		}
	} else {
		logging.Info("lifecycle config already deleted", "configName", props.configName)
	}

	return cfn.Success(physicalID, nil), nil
}

// configExists lists configs scoped to the Code Editor app type and looks for
// the normalized name. The list is paginated; the fixed page size keeps a
// single domain's configs to one round trip in practice.
func (h *Handler) configExists(ctx context.Context, name string) (bool, error) {
	var nextToken *string
	for {
		resp, err := h.cp.ListStudioLifecycleConfigs(ctx, &sagemaker.ListStudioLifecycleConfigsInput{
			AppTypeEquals: appType,
			MaxResults:    aws.Int32(100),
			NextToken:     nextToken,
		})
		if err != nil {
			return false, fmt.Errorf("failed to list lifecycle configs: %w", err)
		}
		for _, lc := range resp.StudioLifecycleConfigs {
			if aws.ToString(lc.StudioLifecycleConfigName) == name {
				return true, nil
			}
		}
		if resp.NextToken == nil {
			return false, nil
		}
		nextToken = resp.NextToken
	}
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFound
	return errors.As(err, &nf)
}
