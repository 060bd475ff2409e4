// Package local runs actions against a directory on the host: files are
// confined to the workspace root and processes start there.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

const (
	workspaceDirMode = 0o755
	workspaceFile    = 0o644
	killWaitDelay    = 2 * time.Second
)

type Workspace struct {
	root string

	readyOnce sync.Once
	readyErr  error
}

var (
	_ ports.Sandbox       = (*Workspace)(nil)
	_ ports.SandboxHandle = (*Workspace)(nil)
)

func NewWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Workspace{root: filepath.Clean(abs)}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// Ready creates the workspace root on first use.
func (w *Workspace) Ready(ctx context.Context) (ports.Sandbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.readyOnce.Do(func() {
		if err := os.MkdirAll(w.root, workspaceDirMode); err != nil {
			w.readyErr = fmt.Errorf("create workspace root: %w", err)
		}
	})
	if w.readyErr != nil {
		return nil, w.readyErr
	}
	return w, nil
}

func (w *Workspace) MkdirAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, workspaceDirMode); err != nil {
		return fmt.Errorf("create directory %q: %w", path, err)
	}
	return nil
}

func (w *Workspace) WriteFile(ctx context.Context, path string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(resolved, []byte(content), workspaceFile); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}

func (w *Workspace) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read file %q: %w", path, domain.ErrNotFound)
		}
		return "", fmt.Errorf("read file %q: %w", path, err)
	}
	return string(data), nil
}

// resolve maps a workspace path onto the host. Absolute paths are taken
// relative to the root.
func (w *Workspace) resolve(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("workspace path is empty")
	}

	joined := filepath.Join(w.root, filepath.FromSlash(strings.TrimLeft(trimmed, "/")))
	rel, err := filepath.Rel(w.root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", path, domain.ErrSandboxPathEscapes)
	}
	return joined, nil
}

// Spawn starts name in the workspace root with stdout and stderr merged into
// one stream.
func (w *Workspace) Spawn(ctx context.Context, name string, args ...string) (ports.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = w.root
	cmd.WaitDelay = killWaitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	p := &process{ctx: ctx, cmd: cmd, output: pr, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		_ = pw.Close()
		close(p.done)
	}()
	return p, nil
}

type process struct {
	ctx     context.Context
	cmd     *exec.Cmd
	output  *io.PipeReader
	done    chan struct{}
	waitErr error
}

func (p *process) Output() io.Reader {
	return p.output
}

// Wait reports the exit code. A non-zero exit is not an error.
func (p *process) Wait() (int, error) {
	<-p.done

	var exitErr *exec.ExitError
	switch {
	case p.waitErr == nil:
		return 0, nil
	case errors.As(p.waitErr, &exitErr):
		return exitErr.ExitCode(), nil
	case p.ctx.Err() != nil:
		return -1, nil
	default:
		return -1, fmt.Errorf("wait for %s: %w", p.cmd.Path, p.waitErr)
	}
}

func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", p.cmd.Path, err)
	}
	return nil
}
