// Package vpclookup resolves the account's default VPC and its default
// subnets so the stack can place resources without asking the user for
// network ids. The lookup owns nothing: Delete is a pure no-op.
package vpclookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/sagestack-io/sagestack/internal/cfn"
	"github.com/sagestack-io/sagestack/internal/logging"
)

// ResourceType is the CloudFormation custom resource type served by this handler.
const ResourceType = "Custom::DefaultVpcLookup"

// EC2API is the subset of the EC2 API the lookup calls, satisfied by
// *ec2.Client.
type EC2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
}

type Handler struct {
	api EC2API
}

func New(api EC2API) *Handler {
	return &Handler{api: api}
}

// Handle resolves the default VPC on Create and Update. Delete succeeds
// immediately since the lookup never created anything.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) cfn.Outcome {
	if event.RequestType == cfn.RequestDelete {
		return cfn.Success(event.PhysicalResourceID, nil)
	}

	outcome, err := h.lookup(ctx)
	if err != nil {
		logging.Error("default VPC lookup failed", logging.Err(err))
		return cfn.Failure(event.PhysicalResourceID, err)
	}
	return outcome
}

func (h *Handler) lookup(ctx context.Context) (cfn.Outcome, error) {
	vpcs, err := h.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{
			{Name: aws.String("is-default"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to describe VPCs: %w", err)
	}
	if len(vpcs.Vpcs) == 0 {
		return cfn.Outcome{}, errors.New("this account/region has no default VPC")
	}
	vpcID := aws.ToString(vpcs.Vpcs[0].VpcId)

	subnets, err := h.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("default-for-az"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return cfn.Outcome{}, fmt.Errorf("failed to describe subnets of %s: %w", vpcID, err)
	}
	if len(subnets.Subnets) == 0 {
		return cfn.Outcome{}, fmt.Errorf("default VPC %s has no default subnets", vpcID)
	}

	subnetIDs := make([]string, 0, len(subnets.Subnets))
	for _, s := range subnets.Subnets {
		subnetIDs = append(subnetIDs, aws.ToString(s.SubnetId))
	}
	sort.Strings(subnetIDs)

	logging.Info("resolved default VPC", "vpcId", vpcID, "subnets", len(subnetIDs))
	return cfn.Success(vpcID+"-lookup", map[string]any{
		"VpcId":     vpcID,
		"SubnetId":  subnetIDs[0],
		"SubnetIds": strings.Join(subnetIDs, ","),
	}), nil
}
