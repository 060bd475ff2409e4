package pass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

const keyPrefix = "botsmith/credentials/"

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// Store keeps credentials as JSON entries in the pass password store.
type Store struct {
	run runFunc
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPassCommand}
}

func (s *Store) Save(ctx context.Context, profile string, creds domain.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials %q: %w", profile, err)
	}

	key := keyFor(profile)
	_, stderr, err := s.run(ctx, string(data)+"\n", "insert", "-m", "-f", key)
	if err != nil {
		return formatError("save", key, err, stderr)
	}

	return nil
}

func (s *Store) Load(ctx context.Context, profile string) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}

	key := keyFor(profile)
	stdout, stderr, err := s.run(ctx, "", "show", key)
	if err != nil {
		if strings.Contains(stderr, "is not in the password store") {
			return domain.Credentials{}, fmt.Errorf("credentials %q: %w", profile, domain.ErrNotFound)
		}
		return domain.Credentials{}, formatError("load", key, err, stderr)
	}

	var creds domain.Credentials
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode credentials %q: %w", profile, err)
	}

	return creds, nil
}

func (s *Store) Delete(ctx context.Context, profile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := keyFor(profile)
	_, stderr, err := s.run(ctx, "", "rm", "-f", key)
	if err != nil {
		return formatError("delete", key, err, stderr)
	}

	return nil
}

func keyFor(profile string) string {
	return keyPrefix + strings.TrimSpace(profile)
}

func runPassCommand(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func formatError(op string, key string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}

	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}
