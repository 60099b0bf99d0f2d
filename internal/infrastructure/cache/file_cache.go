package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

const fileSuffix = ".json"

// FileCache mirrors definitions as one JSON file per document type
type FileCache struct {
	dir    string
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewFileCache creates the cache directory if needed
func NewFileCache(dir string, logger *zap.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{dir: dir, logger: logger}, nil
}

// Get returns the cached definition, or the default template when none is cached
func (c *FileCache) Get(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, err := c.read(documentTypeID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return entity.NewDefaultDefinition(documentTypeID), nil
	}
	return def, nil
}

// Put writes the definition when the cached version equals expectedVersion
func (c *FileCache) Put(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error {
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.read(def.DocumentTypeID)
	if err != nil {
		return err
	}
	var version int64
	if current != nil {
		version = current.Version
	}
	if version != expectedVersion {
		return fmt.Errorf("%w: cached %s is at version %d", workflow.ErrConflict, def.DocumentTypeID, version)
	}

	def.Version = expectedVersion + 1
	return c.write(def)
}

// Mirror writes the definition keeping its version
func (c *FileCache) Mirror(ctx context.Context, def *entity.WorkflowDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(def)
}

// List returns the cached document type ids
func (c *FileCache) List(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		ids = append(ids, string(raw))
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *FileCache) path(documentTypeID string) string {
	return filepath.Join(c.dir, base64.RawURLEncoding.EncodeToString([]byte(documentTypeID))+fileSuffix)
}

// read returns nil when the document type is not cached
func (c *FileCache) read(documentTypeID string) (*entity.WorkflowDefinition, error) {
	content, err := os.ReadFile(c.path(documentTypeID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to read cached definition", zap.String("document_type_id", documentTypeID), zap.Error(err))
		return nil, fmt.Errorf("failed to read cached definition: %w", err)
	}

	var def entity.WorkflowDefinition
	if err := json.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("failed to decode cached definition %s: %w", documentTypeID, err)
	}
	def.Source = entity.SourceFallback
	return &def, nil
}

// write replaces the file atomically via rename
func (c *FileCache) write(def *entity.WorkflowDefinition) error {
	content, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(def.DocumentTypeID)); err != nil {
		c.logger.Error("Failed to write cached definition", zap.String("document_type_id", def.DocumentTypeID), zap.Error(err))
		return fmt.Errorf("failed to write cached definition: %w", err)
	}

	c.logger.Debug("Definition cached",
		zap.String("document_type_id", def.DocumentTypeID),
		zap.Int64("version", def.Version))
	return nil
}

var _ port.FallbackCache = (*FileCache)(nil)
