package core

import (
	"context"

	"aptly-reconcile/internal/ports"
)

// Executor runs ordered commands one at a time. Pretend suppresses every
// side effect while keeping planning identical.
type Executor struct {
	Runner  ports.CommandRunnerPort
	Pretend bool
}

func NewExecutor(runner ports.CommandRunnerPort, pretend bool) Executor {
	return Executor{Runner: runner, Pretend: pretend}
}

// Run stops at the first failing command; commands already applied stay
// applied.
func (e Executor) Run(ctx context.Context, commands []*Command) (int, error) {
	executed := 0
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		if err := cmd.Execute(ctx, e); err != nil {
			return executed, err
		}
		executed++
	}
	return executed, nil
}
