package weights

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/juror-match/internal/model"
)

// Snapshot is the serialized form of a Table.
type Snapshot struct {
	Meta
	Personas []model.Persona             `json:"personas"`
	Weights  []model.SignalPersonaWeight `json:"weights"`
}

// Snapshot returns the serializable form of t.
func (t *Table) Snapshot() Snapshot {
	return Snapshot{Meta: t.meta, Personas: t.personas, Weights: t.weights}
}

// FromSnapshot validates and indexes a snapshot.
func FromSnapshot(s Snapshot) (*Table, error) {
	t, err := New(s.Meta, s.Personas, s.Weights)
	if err != nil {
		return nil, eris.Wrapf(err, "weights: load snapshot %s", s.ID)
	}
	return t, nil
}

// Encode writes t as indented JSON.
func Encode(w io.Writer, t *Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.Snapshot()); err != nil {
		return eris.Wrap(err, "weights: encode snapshot")
	}
	return nil
}

// Decode reads a JSON snapshot.
func Decode(r io.Reader) (*Table, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, eris.Wrap(err, "weights: decode snapshot")
	}
	return FromSnapshot(s)
}

// WriteFile saves t to path, replacing any existing file atomically.
func WriteFile(path string, t *Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".weights-*.json")
	if err != nil {
		return eris.Wrapf(err, "weights: create temp for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := Encode(tmp, t); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "weights: close temp for %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "weights: rename snapshot to %s", path)
	}
	return nil
}

// ReadFile loads a snapshot from path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "weights: open snapshot %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Decode(f)
}
