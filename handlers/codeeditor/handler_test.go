package codeeditor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagestack-io/sagestack/internal/cfn"
)

type describeResult struct {
	status types.SpaceStatus
	err    error
}

type appResult struct {
	status types.AppStatus
	err    error
}

type fakeControlPlane struct {
	calls []string

	createSpaceInput *sagemaker.CreateSpaceInput
	createSpaceErr   error
	spaceArn         string

	describeResults []describeResult
	describeIdx     int

	deleteSpaceErr error

	createAppInput *sagemaker.CreateAppInput
	createAppErr   error

	appResults []appResult
	appIdx     int

	deleteAppErr error
}

func (f *fakeControlPlane) CreateSpace(ctx context.Context, params *sagemaker.CreateSpaceInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateSpaceOutput, error) {
	f.calls = append(f.calls, "CreateSpace")
	f.createSpaceInput = params
	if f.createSpaceErr != nil {
		return nil, f.createSpaceErr
	}
	return &sagemaker.CreateSpaceOutput{SpaceArn: aws.String(f.spaceArn)}, nil
}

func (f *fakeControlPlane) DescribeSpace(ctx context.Context, params *sagemaker.DescribeSpaceInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeSpaceOutput, error) {
	f.calls = append(f.calls, "DescribeSpace")
	if f.describeIdx >= len(f.describeResults) {
		return nil, fmt.Errorf("unexpected DescribeSpace call %d", f.describeIdx+1)
	}
	res := f.describeResults[f.describeIdx]
	f.describeIdx++
	if res.err != nil {
		return nil, res.err
	}
	return &sagemaker.DescribeSpaceOutput{
		SpaceArn: aws.String(f.spaceArn),
		Status:   res.status,
	}, nil
}

func (f *fakeControlPlane) DeleteSpace(ctx context.Context, params *sagemaker.DeleteSpaceInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteSpaceOutput, error) {
	f.calls = append(f.calls, "DeleteSpace")
	if f.deleteSpaceErr != nil {
		return nil, f.deleteSpaceErr
	}
	return &sagemaker.DeleteSpaceOutput{}, nil
}

func (f *fakeControlPlane) CreateApp(ctx context.Context, params *sagemaker.CreateAppInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateAppOutput, error) {
	f.calls = append(f.calls, "CreateApp")
	f.createAppInput = params
	if f.createAppErr != nil {
		return nil, f.createAppErr
	}
	return &sagemaker.CreateAppOutput{}, nil
}

func (f *fakeControlPlane) DescribeApp(ctx context.Context, params *sagemaker.DescribeAppInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeAppOutput, error) {
	f.calls = append(f.calls, "DescribeApp")
	if f.appIdx >= len(f.appResults) {
		return nil, fmt.Errorf("unexpected DescribeApp call %d", f.appIdx+1)
	}
	res := f.appResults[f.appIdx]
	f.appIdx++
	if res.err != nil {
		return nil, res.err
	}
	return &sagemaker.DescribeAppOutput{Status: res.status}, nil
}

func (f *fakeControlPlane) DeleteApp(ctx context.Context, params *sagemaker.DeleteAppInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteAppOutput, error) {
	f.calls = append(f.calls, "DeleteApp")
	if f.deleteAppErr != nil {
		return nil, f.deleteAppErr
	}
	return &sagemaker.DeleteAppOutput{}, nil
}

func newTestHandler(cp *fakeControlPlane) *Handler {
	h := New(cp)
	h.sleep = func(time.Duration) {}
	return h
}

func TestHandleCreate(t *testing.T) {
	cp := &fakeControlPlane{
		spaceArn: "arn:aws:sagemaker:eu-west-1:123456789012:space/d-1/code-editor",
		describeResults: []describeResult{
			{status: types.SpaceStatusPending},
			{status: types.SpaceStatusInService},
		},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType: cfn.RequestCreate,
		ResourceProperties: map[string]any{
			"DomainId":           "d-1",
			"SpaceName":          "code-editor",
			"UserProfileName":    "studio-user",
			"LifecycleConfigArn": "arn:aws:sagemaker:eu-west-1:123456789012:studio-lifecycle-config/myconfig",
		},
	})

	assert.Equal(t, cfn.StatusSuccess, outcome.Status)
	assert.Equal(t, "d-1/code-editor", outcome.PhysicalResourceID)
	assert.Equal(t, cp.spaceArn, outcome.Data["SpaceArn"])

	require.NotNil(t, cp.createSpaceInput)
	assert.Equal(t, types.AppTypeCodeEditor, cp.createSpaceInput.SpaceSettings.AppType)
	assert.Equal(t, types.SharingTypePrivate, cp.createSpaceInput.SpaceSharingSettings.SharingType)
	assert.Equal(t, "studio-user", aws.ToString(cp.createSpaceInput.OwnershipSettings.OwnerUserProfileName))

	spec := cp.createSpaceInput.SpaceSettings.CodeEditorAppSettings.DefaultResourceSpec
	assert.Equal(t, types.AppInstanceType(defaultInstanceType), spec.InstanceType)
	assert.Contains(t, aws.ToString(spec.LifecycleConfigArn), "studio-lifecycle-config/myconfig")

	require.NotNil(t, cp.createAppInput)
	assert.Equal(t, appName, aws.ToString(cp.createAppInput.AppName))
	assert.Equal(t, types.AppTypeCodeEditor, cp.createAppInput.AppType)
}

func TestHandleCreate_SharedWithoutOwner(t *testing.T) {
	cp := &fakeControlPlane{
		spaceArn:        "arn:aws:sagemaker:eu-west-1:123456789012:space/d-1/code-editor",
		describeResults: []describeResult{{status: types.SpaceStatusInService}},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType: cfn.RequestCreate,
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusSuccess, outcome.Status)
	assert.Nil(t, cp.createSpaceInput.OwnershipSettings)
	assert.Equal(t, types.SharingTypeShared, cp.createSpaceInput.SpaceSharingSettings.SharingType)
}

func TestHandleCreate_SpaceFailure(t *testing.T) {
	cp := &fakeControlPlane{
		spaceArn:        "arn:aws:sagemaker:eu-west-1:123456789012:space/d-1/code-editor",
		describeResults: []describeResult{{status: types.SpaceStatusFailed}},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType: cfn.RequestCreate,
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "Failed")
	assert.NotContains(t, cp.calls, "CreateApp")
}

func TestHandleUpdate_Moved(t *testing.T) {
	cp := &fakeControlPlane{}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestUpdate,
		PhysicalResourceID: "d-1/code-editor",
		ResourceProperties: map[string]any{
			"DomainId":  "d-2",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "not supported")
	assert.Empty(t, cp.calls)
}

func TestHandleUpdate_Unchanged(t *testing.T) {
	cp := &fakeControlPlane{
		spaceArn:        "arn:aws:sagemaker:eu-west-1:123456789012:space/d-1/code-editor",
		describeResults: []describeResult{{status: types.SpaceStatusInService}},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestUpdate,
		PhysicalResourceID: "d-1/code-editor",
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusSuccess, outcome.Status)
	assert.Equal(t, []string{"DescribeSpace"}, cp.calls)
}

func TestHandleDelete(t *testing.T) {
	notFound := &types.ResourceNotFound{}

	cp := &fakeControlPlane{
		// The app is already gone; the space deletion completes on the
		// second poll.
		deleteAppErr: notFound,
		describeResults: []describeResult{
			{status: types.SpaceStatusDeleting},
			{err: notFound},
		},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestDelete,
		PhysicalResourceID: "d-1/code-editor",
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusSuccess, outcome.Status)
	assert.Equal(t, "d-1/code-editor", outcome.PhysicalResourceID)
	assert.Contains(t, cp.calls, "DeleteSpace")
}

func TestHandleDelete_WaitsForAppBeforeSpace(t *testing.T) {
	notFound := &types.ResourceNotFound{}

	cp := &fakeControlPlane{
		appResults: []appResult{
			{status: types.AppStatusDeleting},
			{status: types.AppStatusDeleted},
		},
		describeResults: []describeResult{
			{status: types.SpaceStatusDeleting},
			{err: notFound},
		},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestDelete,
		PhysicalResourceID: "d-1/code-editor",
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusSuccess, outcome.Status)
	// The space is only removed once the app has finished winding down.
	assert.Equal(t, []string{
		"DeleteApp",
		"DescribeApp",
		"DescribeApp",
		"DeleteSpace",
		"DescribeSpace",
		"DescribeSpace",
	}, cp.calls)
}

func TestHandleDelete_AppDeletionFailed(t *testing.T) {
	cp := &fakeControlPlane{
		appResults: []appResult{{status: types.AppStatusFailed}},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestDelete,
		PhysicalResourceID: "d-1/code-editor",
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "Failed")
	assert.NotContains(t, cp.calls, "DeleteSpace")
}

func TestHandleDelete_SpaceAlreadyGone(t *testing.T) {
	cp := &fakeControlPlane{
		deleteAppErr:   &types.ResourceNotFound{},
		deleteSpaceErr: &types.ResourceNotFound{},
	}
	h := newTestHandler(cp)

	outcome := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestDelete,
		PhysicalResourceID: "d-1/code-editor",
		ResourceProperties: map[string]any{
			"DomainId":  "d-1",
			"SpaceName": "code-editor",
		},
	})

	assert.Equal(t, cfn.StatusSuccess, outcome.Status)
	assert.NotContains(t, cp.calls, "DescribeSpace", "no wait when the space was already gone")
}
