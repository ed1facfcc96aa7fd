package roster

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/model"
)

// Worker is a roster entry with its baseline capability matrix
type Worker struct {
	ID          model.WorkerID
	DisplayName string
	Baseline    capability.Matrix

	// Modifier is the roster-level per-worker workload modifier
	Modifier float64

	// GlobalModifier applies to every assignment of this worker
	GlobalModifier float64
}

// Roster holds the baseline matrices of all known workers
type Roster struct {
	catalog *model.Catalog
	workers map[model.WorkerID]*Worker
}

// New creates an empty roster for the catalog
func New(catalog *model.Catalog) *Roster {
	return &Roster{
		catalog: catalog,
		workers: make(map[model.WorkerID]*Worker),
	}
}

// Add registers a worker, replacing any previous entry with the same identity
func (r *Roster) Add(w *Worker) {
	if w.Baseline == nil {
		w.Baseline = capability.NewMatrix(r.catalog)
	}
	r.workers[w.ID] = w
}

// Lookup returns the worker with the given identity
func (r *Roster) Lookup(id model.WorkerID) (*Worker, bool) {
	w, ok := r.workers[id]
	return w, ok
}

// Baseline returns the worker's baseline matrix, or an all-Inactive matrix for unknown workers
func (r *Roster) Baseline(id model.WorkerID) capability.Matrix {
	if w, ok := r.workers[id]; ok {
		return w.Baseline
	}
	return capability.NewMatrix(r.catalog)
}

// Workers returns all workers ordered by identity
func (r *Roster) Workers() []*Worker {
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].ID < workers[j].ID
	})
	return workers
}

// Len returns the number of workers
func (r *Roster) Len() int {
	return len(r.workers)
}

// SetValue edits a worker's baseline using a shorthand key (see capability.Expand)
func (r *Roster) SetValue(id model.WorkerID, key string, value capability.Value) error {
	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("worker %s not found in roster", id)
	}

	expansion := capability.Expand(r.catalog, capability.Overrides{key: value})
	if len(expansion.UnknownKeys) > 0 {
		return fmt.Errorf("unknown capability key %q", key)
	}
	for cell, v := range expansion.Values {
		w.Baseline[cell] = v
	}
	return nil
}

// fileEntry is one worker in a YAML roster file
type fileEntry struct {
	Name           string                      `yaml:"name" validate:"required"`
	Modifier       float64                     `yaml:"modifier,omitempty" validate:"gte=0"`
	GlobalModifier float64                     `yaml:"globalModifier,omitempty" validate:"gte=0"`
	Skills         map[string]capability.Value `yaml:"skills"`
}

type file struct {
	Workers []fileEntry `yaml:"workers" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadFile loads a YAML roster. Unknown skill keys are a structural error.
func LoadFile(path string, catalog *model.Catalog, ids *model.Identities) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("roster validation failed: %w", err)
	}

	r := New(catalog)
	for _, entry := range f.Workers {
		baseline, unknown := capability.BuildBaseline(catalog, capability.Overrides(entry.Skills))
		if len(unknown) > 0 {
			return nil, fmt.Errorf("roster entry %q has unknown skill keys: %s", entry.Name, strings.Join(unknown, ", "))
		}
		r.Add(&Worker{
			ID:             ids.Resolve(entry.Name),
			DisplayName:    strings.TrimSpace(entry.Name),
			Baseline:       baseline,
			Modifier:       entry.Modifier,
			GlobalModifier: entry.GlobalModifier,
		})
	}

	return r, nil
}

// Column names understood by Parse
const (
	ColumnName           = "Name"
	ColumnModifier       = "Modifier"
	ColumnGlobalModifier = "Global modifier"
)

// Parse converts header-indexed rows (e.g. from a spreadsheet) into a roster.
// The header must contain a Name column; modifier columns are optional and every
// other column is read as a shorthand skill key.
func Parse(raw [][]interface{}, catalog *model.Catalog, ids *model.Identities) (*Roster, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}

	nameIndex, modIndex, globalIndex := -1, -1, -1
	skillColumns := make(map[int]string)
	for i, cell := range raw[0] {
		header := strings.TrimSpace(fmt.Sprint(cell))
		switch {
		case strings.EqualFold(header, ColumnName):
			nameIndex = i
		case strings.EqualFold(header, ColumnModifier):
			modIndex = i
		case strings.EqualFold(header, ColumnGlobalModifier):
			globalIndex = i
		case header != "":
			skillColumns[i] = header
		}
	}
	if nameIndex == -1 {
		return nil, fmt.Errorf("missing required field in header: %s", ColumnName)
	}

	// Reject unknown skill columns up front so a typo never silently drops a veto
	for _, header := range skillColumns {
		expansion := capability.Expand(catalog, capability.Overrides{header: capability.Active})
		if len(expansion.UnknownKeys) > 0 {
			return nil, fmt.Errorf("unknown skill column %q", header)
		}
	}

	cellAt := func(row []interface{}, index int) interface{} {
		if index < 0 || index >= len(row) {
			return nil
		}
		return row[index]
	}

	r := New(catalog)
	for rowNum := 1; rowNum < len(raw); rowNum++ {
		row := raw[rowNum]

		name := strings.TrimSpace(fmt.Sprint(cellAt(row, nameIndex)))
		// Skip empty rows
		if name == "" || name == "<nil>" {
			continue
		}

		overrides := make(capability.Overrides, len(skillColumns))
		for index, header := range skillColumns {
			// A blank cell leaves the key unset so a less specific column still applies
			cell := cellAt(row, index)
			if cell == nil || strings.TrimSpace(fmt.Sprint(cell)) == "" {
				continue
			}
			v, err := capability.ParseValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", rowNum+1, header, err)
			}
			overrides[header] = v
		}
		baseline, _ := capability.BuildBaseline(catalog, overrides)

		modifier, err := parseModifier(cellAt(row, modIndex))
		if err != nil {
			return nil, fmt.Errorf("row %d, column %q: %w", rowNum+1, ColumnModifier, err)
		}
		globalModifier, err := parseModifier(cellAt(row, globalIndex))
		if err != nil {
			return nil, fmt.Errorf("row %d, column %q: %w", rowNum+1, ColumnGlobalModifier, err)
		}

		r.Add(&Worker{
			ID:             ids.Resolve(name),
			DisplayName:    name,
			Baseline:       baseline,
			Modifier:       modifier,
			GlobalModifier: globalModifier,
		})
	}

	return r, nil
}

func parseModifier(cell interface{}) (float64, error) {
	switch v := cell.(type) {
	case nil:
		return 1, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}

	s := strings.TrimSpace(fmt.Sprint(cell))
	if s == "" {
		return 1, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid modifier %q", s)
	}
	return f, nil
}
