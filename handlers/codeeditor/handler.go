// Package codeeditor provisions a SageMaker Studio space running a Code
// Editor app. Create builds the space, waits for it to come up, and starts
// the app; Delete tears both down tolerating pieces that are already gone.
package codeeditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/sagestack-io/sagestack/internal/cfn"
	"github.com/sagestack-io/sagestack/internal/logging"
)

// ResourceType is the CloudFormation custom resource type served by this handler.
const ResourceType = "Custom::StudioCodeEditor"

const (
	appName             = "default"
	defaultInstanceType = "ml.t3.medium"
	defaultEbsSizeGb    = 50
	spacePollInterval   = 10 * time.Second
)

// ErrUnsupportedUpdate is reported when an Update would move the space to a
// different domain or rename it.
var ErrUnsupportedUpdate = errors.New("the update of 'DomainId' or 'SpaceName' is not supported; please recreate the stack instead")

// ControlPlane is the subset of the SageMaker API the handler calls,
// satisfied by *sagemaker.Client.
type ControlPlane interface {
	CreateSpace(ctx context.Context, params *sagemaker.CreateSpaceInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateSpaceOutput, error)
	DescribeSpace(ctx context.Context, params *sagemaker.DescribeSpaceInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeSpaceOutput, error)
	DeleteSpace(ctx context.Context, params *sagemaker.DeleteSpaceInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteSpaceOutput, error)
	CreateApp(ctx context.Context, params *sagemaker.CreateAppInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateAppOutput, error)
	DescribeApp(ctx context.Context, params *sagemaker.DescribeAppInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeAppOutput, error)
	DeleteApp(ctx context.Context, params *sagemaker.DeleteAppInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteAppOutput, error)
}

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
	domainID           string
	spaceName          string
	userProfileName    string
	lifecycleConfigArn string
	instanceType       string
	ebsSizeGb          int
}

func parseProperties(event cfn.Event) (properties, error) {
	domainID, err := event.StringProp("DomainId")
	if err != nil {
		return properties{}, err
	}
	spaceName, err := event.StringProp("SpaceName")
	if err != nil {
		return properties{}, err
	}

	p := properties{
		domainID:     domainID,
		spaceName:    spaceName,
		instanceType: defaultInstanceType,
		ebsSizeGb:    defaultEbsSizeGb,
	}
	if v, ok := event.ResourceProperties["UserProfileName"].(string); ok {
		p.userProfileName = v
	}
	if v, ok := event.ResourceProperties["LifecycleConfigArn"].(string); ok {
		p.lifecycleConfigArn = v
	}
	if v, ok := event.ResourceProperties["InstanceType"].(string); ok && v != "" {
		p.instanceType = v
	}
	if _, ok := event.ResourceProperties["EbsVolumeSizeGb"]; ok {
		size, err := event.IntProp("EbsVolumeSizeGb")
		if err != nil {
			return properties{}, err
		}
		p.ebsSizeGb = size
	}
	return p, nil
}

// Handle processes one lifecycle event for the Code Editor space.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) cfn.Outcome {
	props, err := parseProperties(event)
	if err != nil {
		logging.Error("invalid code editor properties", logging.Err(err))
		return cfn.Failure(event.PhysicalResourceID, err)
	}

	physicalID := fmt.Sprintf("%s/%s", props.domainID, props.spaceName)

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
		logging.Error("code editor event failed",
			"requestType", event.RequestType,
			"spaceName", props.spaceName,
			logging.Err(err))
		return cfn.Failure(event.PhysicalResourceID, err)
	}
	return outcome
}

func (h *Handler) create(ctx context.Context, props properties, physicalID string) (cfn.Outcome, error) {
	resourceSpec := &types.ResourceSpec{
		InstanceType: types.AppInstanceType(props.instanceType),
	}
	if props.lifecycleConfigArn != "" {
		resourceSpec.LifecycleConfigArn = aws.String(props.lifecycleConfigArn)
	}

	input := &sagemaker.CreateSpaceInput{
		DomainId:  aws.String(props.domainID),
		SpaceName: aws.String(props.spaceName),
		SpaceSettings: &types.SpaceSettings{
			AppType: types.AppTypeCodeEditor,
			CodeEditorAppSettings: &types.SpaceCodeEditorAppSettings{
				DefaultResourceSpec: resourceSpec,
			},
			SpaceStorageSettings: &types.SpaceStorageSettings{
				EbsStorageSettings: &types.EbsStorageSettings{
					EbsVolumeSizeInGb: aws.Int32(int32(props.ebsSizeGb)),
				},
			},
		},
	}
	// A private space needs an owner; without one the space is shared.
	if props.userProfileName != "" {
		input.OwnershipSettings = &types.OwnershipSettings{
			OwnerUserProfileName: aws.String(props.userProfileName),
		}
		input.SpaceSharingSettings = &types.SpaceSharingSettings{
			SharingType: types.SharingTypePrivate,
		}
	} else {
		input.SpaceSharingSettings = &types.SpaceSharingSettings{
			SharingType: types.SharingTypeShared,
		}
	}

	resp, err := h.cp.CreateSpace(ctx, input)
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to create space %q: %w", props.spaceName, err)
	}

	if err := h.waitSpaceInService(ctx, props.domainID, props.spaceName); err != nil {
		return cfn.Outcome{}, err
	}

	_, err = h.cp.CreateApp(ctx, &sagemaker.CreateAppInput{
		DomainId:     aws.String(props.domainID),
		SpaceName:    aws.String(props.spaceName),
		AppName:      aws.String(appName),
		AppType:      types.AppTypeCodeEditor,
		ResourceSpec: resourceSpec,
	})
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to create app in space %q: %w", props.spaceName, err)
	}

	logging.Info("code editor space created", "spaceName", props.spaceName)
	return cfn.Success(physicalID, map[string]any{
		"SpaceArn": aws.ToString(resp.SpaceArn),
	}), nil
}

func (h *Handler) update(ctx context.Context, event cfn.Event, props properties, physicalID string) (cfn.Outcome, error) {
	if physicalID != event.PhysicalResourceID {
		return cfn.Outcome{}, ErrUnsupportedUpdate
	}

	resp, err := h.cp.DescribeSpace(ctx, &sagemaker.DescribeSpaceInput{
		DomainId:  aws.String(props.domainID),
		SpaceName: aws.String(props.spaceName),
	})
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to describe space %q: %w", props.spaceName, err)
	}

	return cfn.Success(physicalID, map[string]any{
		"SpaceArn": aws.ToString(resp.SpaceArn),
	}), nil
}

func (h *Handler) delete(ctx context.Context, props properties, physicalID string) (cfn.Outcome, error) {
	_, err := h.cp.DeleteApp(ctx, &sagemaker.DeleteAppInput{
		DomainId:  aws.String(props.domainID),
		SpaceName: aws.String(props.spaceName),
		AppName:   aws.String(appName),
		AppType:   types.AppTypeCodeEditor,
	})
	if err != nil && !isNotFound(err) {
		return cfn.Outcome{}, fmt.Errorf("failed to delete app in space %q: %w", props.spaceName, err)
	}

	// App deletion is asynchronous and the space cannot be deleted while
	// any of its apps is still winding down.
	if err == nil {
		if err := h.waitAppGone(ctx, props.domainID, props.spaceName); err != nil {
			return cfn.Outcome{}, err
		}
	}

	_, err = h.cp.DeleteSpace(ctx, &sagemaker.DeleteSpaceInput{
		DomainId:  aws.String(props.domainID),
		SpaceName: aws.String(props.spaceName),
	})
	if isNotFound(err) {
		logging.Info("space already deleted", "spaceName", props.spaceName)
		return cfn.Success(physicalID, nil), nil
	}
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to delete space %q: %w", props.spaceName, err)
	}

	if err := h.waitSpaceGone(ctx, props.domainID, props.spaceName); err != nil {
		return cfn.Outcome{}, err
	}

	logging.Info("code editor space deleted", "spaceName", props.spaceName)
	return cfn.Success(physicalID, nil), nil
}

func (h *Handler) waitSpaceInService(ctx context.Context, domainID, spaceName string) error {
	for {
		resp, err := h.cp.DescribeSpace(ctx, &sagemaker.DescribeSpaceInput{
			DomainId:  aws.String(domainID),
			SpaceName: aws.String(spaceName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe space %q: %w", spaceName, err)
		}

		switch resp.Status {
		case types.SpaceStatusInService:
			return nil
		case types.SpaceStatusFailed, types.SpaceStatusUpdateFailed, types.SpaceStatusDeleteFailed:
			return fmt.Errorf("space %q is in %q state", spaceName, resp.Status)
		}

		logging.Debug("waiting for space", "spaceName", spaceName, "status", resp.Status)
		h.sleep(spacePollInterval)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("space wait cancelled: %w", err)
		}
	}
}

func (h *Handler) waitAppGone(ctx context.Context, domainID, spaceName string) error {
	for {
		resp, err := h.cp.DescribeApp(ctx, &sagemaker.DescribeAppInput{
			DomainId:  aws.String(domainID),
			SpaceName: aws.String(spaceName),
			AppName:   aws.String(appName),
			AppType:   types.AppTypeCodeEditor,
		})
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to describe app in space %q: %w", spaceName, err)
		}

		switch resp.Status {
		case types.AppStatusDeleted:
			return nil
		case types.AppStatusFailed:
			return fmt.Errorf("app in space %q is in %q state", spaceName, resp.Status)
		}

		logging.Debug("waiting for app deletion", "spaceName", spaceName, "status", resp.Status)
		h.sleep(spacePollInterval)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("app wait cancelled: %w", err)
		}
	}
}

func (h *Handler) waitSpaceGone(ctx context.Context, domainID, spaceName string) error {
	for {
		resp, err := h.cp.DescribeSpace(ctx, &sagemaker.DescribeSpaceInput{
			DomainId:  aws.String(domainID),
			SpaceName: aws.String(spaceName),
		})
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to describe space %q: %w", spaceName, err)
		}

		if resp.Status == types.SpaceStatusDeleteFailed || resp.Status == types.SpaceStatusFailed {
			return fmt.Errorf("space %q is in %q state", spaceName, resp.Status)
		}

		logging.Debug("waiting for space deletion", "spaceName", spaceName, "status", resp.Status)
		h.sleep(spacePollInterval)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("space wait cancelled: %w", err)
		}
	}
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFound
	return errors.As(err, &nf)
}
