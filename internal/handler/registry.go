// Package handler dispatches custom-resource lifecycle events to the backend
// registered for their resource type.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/sagestack-io/sagestack/internal/cfn"
	"github.com/sagestack-io/sagestack/internal/logging"
)

// Handler reconciles one custom resource type. Handle never returns an
// error: every failure is folded into the outcome so it can be reported to
// CloudFormation.
type Handler interface {
	Handle(ctx context.Context, event cfn.Event) cfn.Outcome
}

// Registry maps CloudFormation resource types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a resource type, replacing any previous binding.
func (r *Registry) Register(resourceType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[resourceType] = h
}

// Get returns the handler registered for a resource type.
func (r *Registry) Get(resourceType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[resourceType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for resource type %q", resourceType)
	}
	return h, nil
}

// Dispatch routes an event to its handler. An unknown resource type yields a
// failure outcome rather than an error so CloudFormation still gets a
// response and the stack operation does not hang until timeout.
func (r *Registry) Dispatch(ctx context.Context, event cfn.Event) cfn.Outcome {
	h, err := r.Get(event.ResourceType)
	if err != nil {
		logging.Error("dispatch failed", "resourceType", event.ResourceType, logging.Err(err))
		return cfn.Failure(event.PhysicalResourceID, err)
	}

	logging.Info("handling event",
		"resourceType", event.ResourceType,
		"requestType", event.RequestType,
		"logicalId", event.LogicalResourceID)
	return h.Handle(ctx, event)
}
