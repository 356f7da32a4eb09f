// Package production provides production integrations: persistence, event publishing, visualization.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/comalice/machinestore/interpreter"
)

// ErrUnknownFormat is returned by NewPersister for unsupported formats.
var ErrUnknownFormat = errors.New("unknown snapshot format")

// filePersister stores one snapshot file per machine ID in dir.
type filePersister struct {
	dir       string
	ext       string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func newFilePersister(dir, ext string, marshal func(any) ([]byte, error), unmarshal func([]byte, any) error) (filePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return filePersister{}, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return filePersister{dir: dir, ext: ext, marshal: marshal, unmarshal: unmarshal}, nil
}

func (p filePersister) path(machineID string) string {
	return filepath.Join(p.dir, machineID+p.ext)
}

func (p filePersister) save(ctx context.Context, snapshot interpreter.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.MachineID == "" {
		return errors.New("snapshot has no machine ID")
	}
	data, err := p.marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%s marshal: %w", p.ext[1:], err)
	}

	// Write then rename so a crash never leaves a truncated snapshot.
	fn := p.path(snapshot.MachineID)
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fn); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (p filePersister) load(ctx context.Context, machineID string) (interpreter.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return interpreter.Snapshot{}, err
	}
	fn := p.path(machineID)
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return interpreter.Snapshot{}, fmt.Errorf("machine %q: %w", machineID, os.ErrNotExist)
		}
		return interpreter.Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot interpreter.Snapshot
	if err := p.unmarshal(data, &snapshot); err != nil {
		return interpreter.Snapshot{}, fmt.Errorf("%s unmarshal %s: %w", p.ext[1:], fn, err)
	}
	if snapshot.MachineID == "" {
		snapshot.MachineID = machineID
	}
	if snapshot.MachineID != machineID {
		return interpreter.Snapshot{}, fmt.Errorf("%s: %w", fn, interpreter.ErrMachineMismatch)
	}
	return snapshot, nil
}

// JSONPersister is a file-based persister using JSON serialization.
type JSONPersister struct {
	files filePersister
}

// NewJSONPersister creates a JSONPersister, ensuring the directory exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	files, err := newFilePersister(dir, ".json", func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}, json.Unmarshal)
	if err != nil {
		return nil, err
	}
	return &JSONPersister{files: files}, nil
}

func (p *JSONPersister) Save(ctx context.Context, snapshot interpreter.Snapshot) error {
	return p.files.save(ctx, snapshot)
}

func (p *JSONPersister) Load(ctx context.Context, machineID string) (interpreter.Snapshot, error) {
	return p.files.load(ctx, machineID)
}

// YAMLPersister is a file-based persister using YAML serialization.
type YAMLPersister struct {
	files filePersister
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	files, err := newFilePersister(dir, ".yaml", yaml.Marshal, yaml.Unmarshal)
	if err != nil {
		return nil, err
	}
	return &YAMLPersister{files: files}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snapshot interpreter.Snapshot) error {
	return p.files.save(ctx, snapshot)
}

func (p *YAMLPersister) Load(ctx context.Context, machineID string) (interpreter.Snapshot, error) {
	return p.files.load(ctx, machineID)
}

// NewPersister returns the persister for format ("json" or "yaml") rooted at dir.
func NewPersister(format, dir string) (interpreter.Persister, error) {
	switch format {
	case "json":
		return NewJSONPersister(dir)
	case "yaml", "yml":
		return NewYAMLPersister(dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

var (
	_ interpreter.Persister = (*JSONPersister)(nil)
	_ interpreter.Persister = (*YAMLPersister)(nil)
)
