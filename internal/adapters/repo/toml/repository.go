package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

const (
	namesFileMode   = 0o600
	namesDirMode    = 0o700
	tempFilePattern = ".strategy-names-*.toml.tmp"
)

// Repository remembers the strategy identity locked for each session in a
// single TOML file. Writes replace the file atomically.
type Repository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.StrategyNameRepository = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("strategy names path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve strategy names path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Repository{path: absPath, mu: lockForPath(absPath)}, nil
}

func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) SaveStrategyName(ctx context.Context, session domain.SessionID, identity domain.StrategyIdentity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == "" {
		return errors.New("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := sessionSchema{ID: string(session), FileName: identity.FileName, ClassName: identity.ClassName}
	updated := false
	for i := range file.Sessions {
		if file.Sessions[i].ID == encoded.ID {
			file.Sessions[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Sessions = append(file.Sessions, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) GetStrategyName(ctx context.Context, session domain.SessionID) (domain.StrategyIdentity, error) {
	if err := ctx.Err(); err != nil {
		return domain.StrategyIdentity{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.StrategyIdentity{}, err
	}

	for _, entry := range file.Sessions {
		if entry.ID == string(session) {
			return domain.StrategyIdentity{FileName: entry.FileName, ClassName: entry.ClassName}, nil
		}
	}

	return domain.StrategyIdentity{}, fmt.Errorf("strategy name for session %q: %w", session, domain.ErrNotFound)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read strategy names file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode strategy names file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), namesDirMode); err != nil {
		return fmt.Errorf("create strategy names directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode strategy names file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp strategy names file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp strategy names file: %w", err)
	}

	if err := tempFile.Chmod(namesFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp strategy names file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp strategy names file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace strategy names file: %w", err)
	}

	cleanup = false
	return nil
}
