// Package pipeline runs an operation as an ordered list of dependent steps.
//
// Each step receives the state returned by the previous one and either
// hands a new state to the next step or ends the operation with a Result.
// The runner stops at the first step that ends the operation, and maps any
// step error (or panic) to a gateway failure, so the fail-fast rules live
// here instead of in every operation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/b4/internal/docstore"
	"github.com/mmcdole/b4/internal/domain"
)

// Gateway failure codes raised by the runner itself
const (
	CodePanic    = "EPANIC"
	CodeNoResult = "ENORESULT"
)

// Step is one stage of an operation. Run returns exactly one of: the
// next state, a terminal result, or an error.
type Step[S any] struct {
	Name string
	Run  func(ctx context.Context, state S) (S, *Result, error)
}

// Run executes steps in order, threading state through them. op names
// the operation in logs.
func Run[S any](ctx context.Context, logger *slog.Logger, op string, state S, steps ...Step[S]) (res Result) {
	if logger == nil {
		logger = slog.Default()
	}

	current := ""
	defer func() {
		if r := recover(); r != nil {
			logger.Error("operation step panicked", "operation", op, "step", current, "panic", fmt.Sprint(r))
			res = GatewayFailed(CodePanic)
		}
	}()

	for _, step := range steps {
		current = step.Name

		next, terminal, err := step.Run(ctx, state)
		if err != nil {
			code := docstore.TransportCode(err)
			logger.Warn("operation step failed", "operation", op, "step", step.Name, "code", code, "error", err)
			return GatewayFailed(code)
		}
		if terminal != nil {
			logger.Debug("operation finished",
				"operation", op,
				"step", step.Name,
				"kind", terminal.Kind.String(),
				"status", terminal.Status,
			)
			return *terminal
		}
		state = next
	}

	logger.Error("operation ran out of steps", "operation", op, "error", domain.ErrNoResult)
	return GatewayFailed(CodeNoResult)
}

// Call performs a remote call and continues only when the store answers
// with expect; any other status ends the operation as a pass-through,
// unless its body is not JSON.
// merge folds the response into the state and may be nil.
func Call[S any](
	name string,
	expect int,
	call func(ctx context.Context, state S) (docstore.Response, error),
	merge func(state S, resp docstore.Response) (S, error),
) Step[S] {
	return Step[S]{
		Name: name,
		Run: func(ctx context.Context, state S) (S, *Result, error) {
			resp, err := call(ctx, state)
			if err != nil {
				return state, nil, err
			}
			if resp.Status != expect {
				if err := docstore.CheckJSON(resp); err != nil {
					return state, nil, err
				}
				res := Passed(resp)
				return state, &res, nil
			}
			if merge == nil {
				return state, nil, nil
			}
			next, err := merge(state, resp)
			if err != nil {
				return state, nil, err
			}
			return next, nil, nil
		},
	}
}

// Check ends the operation with the result check returns, if any.
// It makes no remote call.
func Check[S any](name string, check func(state S) *Result) Step[S] {
	return Step[S]{
		Name: name,
		Run: func(_ context.Context, state S) (S, *Result, error) {
			return state, check(state), nil
		},
	}
}

// Finish performs the final remote call and relays its status and body.
// A body that is not JSON is a gateway failure.
func Finish[S any](name string, call func(ctx context.Context, state S) (docstore.Response, error)) Step[S] {
	return Step[S]{
		Name: name,
		Run: func(ctx context.Context, state S) (S, *Result, error) {
			resp, err := call(ctx, state)
			if err != nil {
				return state, nil, err
			}
			if err := docstore.CheckJSON(resp); err != nil {
				return state, nil, err
			}
			res := Passed(resp)
			if resp.Status >= 200 && resp.Status < 300 {
				res = Succeeded(resp)
			}
			return state, &res, nil
		},
	}
}

// Respond builds the final result locally from the state
func Respond[S any](name string, build func(state S) (Result, error)) Step[S] {
	return Step[S]{
		Name: name,
		Run: func(_ context.Context, state S) (S, *Result, error) {
			res, err := build(state)
			if err != nil {
				return state, nil, err
			}
			return state, &res, nil
		},
	}
}
