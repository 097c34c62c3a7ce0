package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition is a typed job definition with a handler function.
// T is the payload type, carried as the job's first argument.
type Definition[T any] struct {
	// Name is the jobtype.
	Name string

	// Handler processes the decoded payload.
	Handler func(ctx context.Context, payload T) error

	// Opts are the jobtype's push defaults.
	Opts []Option
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    opts,
	}
}

// RegisterDefinition registers a typed definition. The first job
// argument is re-encoded to JSON and decoded into T before the handler
// runs.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.RegisterFunc(def.Name, func(ctx context.Context, args ...any) error {
		var t T
		if len(args) > 0 {
			if err := decodeArg(args[0], &t); err != nil {
				return fmt.Errorf("decode payload for job %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, t)
	}, def.Opts...)
}

// Args encodes a typed payload as a job's argument list.
func (d *Definition[T]) Args(payload T) []any {
	return []any{payload}
}

func decodeArg(arg any, dst any) error {
	data, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
