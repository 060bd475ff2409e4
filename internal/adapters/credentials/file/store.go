package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

const (
	storeDirMode = 0o700
	credFileMode = 0o600
)

// Store keeps one JSON credentials file per profile under root.
type Store struct {
	root string
	mu   sync.RWMutex
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Save(ctx context.Context, profile string, creds domain.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForProfile(profile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials %q: %w", profile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".creds-*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if err := tmp.Chmod(credFileMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write credentials %q: %w", profile, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp credentials file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("replace credentials %q: %w", profile, err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context, profile string) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}

	path, err := s.pathForProfile(profile)
	if err != nil {
		return domain.Credentials{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Credentials{}, fmt.Errorf("credentials %q: %w", profile, domain.ErrNotFound)
		}
		return domain.Credentials{}, fmt.Errorf("read credentials %q: %w", profile, err)
	}

	var creds domain.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode credentials %q: %w", profile, err)
	}

	return creds, nil
}

func (s *Store) Delete(ctx context.Context, profile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForProfile(profile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credentials %q: %w", profile, err)
	}

	return nil
}

func (s *Store) pathForProfile(profile string) (string, error) {
	trimmed := strings.TrimSpace(profile)
	if trimmed == "" {
		return "", errors.New("credentials profile is empty")
	}

	cleaned := filepath.Clean(trimmed)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") || cleaned == "." || strings.ContainsRune(cleaned, filepath.Separator) {
		return "", fmt.Errorf("invalid credentials profile %q", profile)
	}

	return filepath.Join(s.root, cleaned+".json"), nil
}
