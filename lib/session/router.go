// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
)

// Handler processes one inbound call. body is the raw CBOR request
// body (empty when the caller sent none). Return a value to place in
// the response's data field, or an error for a failure response.
type Handler func(ctx context.Context, body []byte) (any, error)

// Router maps action names to handlers. Register every action before
// the first session using the router is established.
type Router struct {
	handlers map[string]Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers handler for action. Panics if the action is already
// registered.
func (r *Router) Handle(action string, handler Handler) {
	if _, exists := r.handlers[action]; exists {
		panic(fmt.Sprintf("session.Router: duplicate handler for action %q", action))
	}
	r.handlers[action] = handler
}

func (r *Router) lookup(action string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	handler, ok := r.handlers[action]
	return handler, ok
}

// Decode unmarshals a request body into a T. An empty body yields the
// zero value.
func Decode[T any](body []byte) (T, error) {
	var value T
	if len(body) == 0 {
		return value, nil
	}
	if err := codec.Unmarshal(body, &value); err != nil {
		if diagnostic, diagErr := codec.Diagnose(body); diagErr == nil {
			return value, fmt.Errorf("invalid request body %s: %w", diagnostic, err)
		}
		return value, fmt.Errorf("invalid request body: %w", err)
	}
	return value, nil
}

// HandleTyped registers a handler that receives the request body
// decoded into a T.
func HandleTyped[T any](router *Router, action string, handler func(ctx context.Context, request T) (any, error)) {
	router.Handle(action, func(ctx context.Context, body []byte) (any, error) {
		request, err := Decode[T](body)
		if err != nil {
			return nil, err
		}
		return handler(ctx, request)
	})
}
