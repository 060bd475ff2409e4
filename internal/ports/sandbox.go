package ports

import (
	"context"
	"io"
)

// Sandbox is the isolated filesystem + process capability actions run against.
type Sandbox interface {
	MkdirAll(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, content string) error
	ReadFile(ctx context.Context, path string) (string, error)
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
}

// SandboxHandle resolves to a Sandbox once it has booted.
type SandboxHandle interface {
	Ready(ctx context.Context) (Sandbox, error)
}

type Process interface {
	// Output streams combined stdout/stderr until the process exits.
	Output() io.Reader
	Wait() (int, error)
	Kill() error
}
