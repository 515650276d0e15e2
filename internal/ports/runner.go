package ports

import "context"

// CommandRunnerPort executes one external process. argv[0] is the program.
// Output is stdout; a non-zero exit is an error.
type CommandRunnerPort interface {
	Run(ctx context.Context, argv []string) ([]byte, error)
}

// BackendVersionPort reports the version of the installed backend CLI.
type BackendVersionPort interface {
	BackendVersion(ctx context.Context) (string, error)
}
