package lifecycleconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/sagestack-io/sagestack/internal/logging"
)

// domainPollInterval is the fixed delay between domain status checks.
const domainPollInterval = 10 * time.Second

// EnableDockerAccessAndWait turns on Docker access for the domain and blocks
// until the update settles. It returns the final describe output on
// InService, and an error when the domain lands in a failure status. The poll
// has no attempt cap or deadline; only context cancellation cuts it short.
func (h *Handler) EnableDockerAccessAndWait(ctx context.Context, domainID string) (*sagemaker.DescribeDomainOutput, error) {
	_, err := h.cp.UpdateDomain(ctx, &sagemaker.UpdateDomainInput{
		DomainId: aws.String(domainID),
		DomainSettingsForUpdate: &types.DomainSettingsForUpdate{
			DockerSettings: &types.DockerSettings{
				EnableDockerAccess: types.FeatureStatusEnabled,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update domain %q: %w", domainID, err)
	}

	for {
		resp, err := h.cp.DescribeDomain(ctx, &sagemaker.DescribeDomainInput{
			DomainId: aws.String(domainID),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe domain %q: %w", domainID, err)
		}

		switch resp.Status {
		case types.DomainStatusInService:
			return resp, nil
		case types.DomainStatusFailed, types.DomainStatusUpdateFailed, types.DomainStatusDeleteFailed:
			return nil, fmt.Errorf("domain %q is in %q state", domainID, resp.Status)
		}

		logging.Debug("waiting for domain update", "domainId", domainID, "status", resp.Status)
		h.sleep(domainPollInterval)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("domain wait cancelled: %w", err)
		}
	}
}
