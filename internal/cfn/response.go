package cfn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sagestack-io/sagestack/internal/logging"
)

// responseBody is the JSON document CloudFormation expects at the presigned
// response URL.
type responseBody struct {
	Status             string         `json:"Status"`
	Reason             string         `json:"Reason,omitempty"`
	PhysicalResourceId string         `json:"PhysicalResourceId"`
	StackId            string         `json:"StackId"`
	RequestId          string         `json:"RequestId"`
	LogicalResourceId  string         `json:"LogicalResourceId"`
	Data               map[string]any `json:"Data,omitempty"`
}

// Responder delivers handler outcomes to an event's response URL.
type Responder struct {
	client *http.Client
	policy *RetryPolicy
}

// NewResponder returns a responder with default HTTP client and retry policy.
func NewResponder() *Responder {
	return &Responder{
		client: &http.Client{Timeout: 30 * time.Second},
		policy: DefaultRetryPolicy(),
	}
}

// Send PUTs the outcome to the event's response URL. Transient delivery
// failures are retried with backoff; a non-2xx status fails the delivery.
func (r *Responder) Send(ctx context.Context, event Event, outcome Outcome) error {
	if event.ResponseURL == "" {
		return fmt.Errorf("event has no response URL")
	}

	body, err := json.Marshal(responseBody{
		Status:             outcome.Status,
		Reason:             outcome.Reason,
		PhysicalResourceId: outcome.PhysicalResourceID,
		StackId:            event.StackID,
		RequestId:          event.RequestID,
		LogicalResourceId:  event.LogicalResourceID,
		Data:               outcome.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	return RetryWithBackoff(ctx, r.policy, func() error {
		return r.put(ctx, event.ResponseURL, body)
	}, IsTransientError)
}

func (r *Responder) put(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build response request: %w", err)
	}
	// The presigned S3 URL is signed without a content type; sending one
	// breaks the signature.
	req.Header.Set("Content-Type", "")
	req.ContentLength = int64(len(body))

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver response: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("response delivery rejected: %s", resp.Status)
	}

	logging.Debug("delivered custom resource response", "status", resp.Status)
	return nil
}
