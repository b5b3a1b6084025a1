// Package cfn carries the CloudFormation custom-resource wire types: the
// inbound lifecycle event, the outcome of handling it, and the responder that
// delivers the outcome to the stack's presigned callback URL.
package cfn

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Request types delivered for a custom resource.
const (
	RequestCreate = "Create"
	RequestUpdate = "Update"
	RequestDelete = "Delete"
)

// Statuses reported back to CloudFormation.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Event is a custom-resource lifecycle request as CloudFormation delivers it.
type Event struct {
	RequestType        string         `json:"RequestType"`
	ResponseURL        string         `json:"ResponseURL"`
	StackID            string         `json:"StackId"`
	RequestID          string         `json:"RequestId"`
	ResourceType       string         `json:"ResourceType"`
	LogicalResourceID  string         `json:"LogicalResourceId"`
	PhysicalResourceID string         `json:"PhysicalResourceId,omitempty"`
	ResourceProperties map[string]any `json:"ResourceProperties"`
}

// StringProp returns a required string property from the event.
func (e Event) StringProp(key string) (string, error) {
	v, ok := e.ResourceProperties[key]
	if !ok {
		return "", fmt.Errorf("missing required property %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("property %q must be a non-empty string", key)
	}
	return s, nil
}

// IntProp returns a required integer property. CloudFormation stringifies
// numbers in resource properties, so string values are parsed too.
func (e Event) IntProp(key string) (int, error) {
	v, ok := e.ResourceProperties[key]
	if !ok {
		return 0, fmt.Errorf("missing required property %q", key)
	}
	switch t := v.(type) {
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("property %q is not an integer: %q", key, t)
		}
		return n, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("property %q is not an integer: %v", key, t)
		}
		return int(t), nil
	case int:
		return t, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("property %q is not an integer: %q", key, t)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("property %q is not an integer", key)
	}
}

// Outcome is the result of handling one lifecycle event. It is always
// delivered via the responder, never surfaced as a handler return error.
type Outcome struct {
	Status             string
	Reason             string
	PhysicalResourceID string
	Data               map[string]any
}

// Success builds a success outcome carrying the resource's attributes.
func Success(physicalID string, data map[string]any) Outcome {
	if data == nil {
		data = map[string]any{}
	}
	return Outcome{
		Status:             StatusSuccess,
		PhysicalResourceID: physicalID,
		Data:               data,
	}
}

// Failure builds a failure outcome from an error. The physical id is whatever
// the triggering event declared, which may be empty on a failed Create.
func Failure(physicalID string, err error) Outcome {
	msg := err.Error()
	return Outcome{
		Status:             StatusFailed,
		Reason:             msg,
		PhysicalResourceID: physicalID,
		Data:               map[string]any{"Error": msg},
	}
}
