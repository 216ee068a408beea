package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const recordExt = ".yml"

// FileStore keeps one YAML file per record under <dir>/caravans and
// <dir>/transfers.
type FileStore struct {
	caravanDir  string
	transferDir string
	codec       *codec
	logger      *zap.Logger
}

// NewFileStore creates the record directories when missing.
func NewFileStore(dir string, catalog *item.Catalog, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		caravanDir:  filepath.Join(dir, "caravans"),
		transferDir: filepath.Join(dir, "transfers"),
		codec:       newCodec(catalog, logger),
		logger:      logger,
	}
	for _, d := range []string{s.caravanDir, s.transferDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return s, nil
}

func (s *FileStore) SaveCaravan(_ context.Context, c *caravan.Caravan) error {
	data, err := yaml.Marshal(s.codec.caravanRecord(c))
	if err != nil {
		return fmt.Errorf("encoding caravan %s: %w", c.ID, err)
	}
	return s.write(s.caravanDir, c.ID, data)
}

func (s *FileStore) LoadCaravan(_ context.Context, id string) (*caravan.Caravan, error) {
	data, err := s.read(s.caravanDir, id)
	if err != nil {
		return nil, err
	}
	return s.codec.decodeCaravan(data, id)
}

func (s *FileStore) DeleteCaravan(_ context.Context, id string) error {
	return s.remove(s.caravanDir, id)
}

func (s *FileStore) CaravanIDs(_ context.Context) ([]string, error) {
	return listIDs(s.caravanDir)
}

func (s *FileStore) SaveTransfer(_ context.Context, t *caravan.Transfer) error {
	data, err := yaml.Marshal(s.codec.transferRecord(t))
	if err != nil {
		return fmt.Errorf("encoding transfer %s: %w", t.ID, err)
	}
	return s.write(s.transferDir, t.ID, data)
}

func (s *FileStore) LoadTransfer(_ context.Context, id string) (*caravan.Transfer, error) {
	data, err := s.read(s.transferDir, id)
	if err != nil {
		return nil, err
	}
	return s.codec.decodeTransfer(data, id)
}

func (s *FileStore) DeleteTransfer(_ context.Context, id string) error {
	return s.remove(s.transferDir, id)
}

func (s *FileStore) TransferIDs(_ context.Context) ([]string, error) {
	return listIDs(s.transferDir)
}

func recordPath(dir, id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(dir, id+recordExt), nil
}

func (s *FileStore) read(dir, id string) ([]byte, error) {
	path, err := recordPath(dir, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", caravan.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	return data, nil
}

// write replaces the record atomically: temp file, fsync, rename.
func (s *FileStore) write(dir, id string, data []byte) error {
	path, err := recordPath(dir, id)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", id, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", id, err)
	}
	return nil
}

// remove deletes a record. Deleting a missing record is not an error.
func (s *FileStore) remove(dir, id string) error {
	path, err := recordPath(dir, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	return nil
}

func listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	sort.Strings(ids)
	return ids, nil
}
