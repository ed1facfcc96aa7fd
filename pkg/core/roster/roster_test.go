package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/model"
)

func testCatalog(t *testing.T) *model.Catalog {
	t.Helper()
	catalog, err := model.NewCatalog(
		[]model.Capability{{Name: "normal", Weight: 1}, {Name: "notfall", Weight: 1.5}},
		[]string{"ct", "mr"},
	)
	require.NoError(t, err)
	return catalog
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	catalog := testCatalog(t)
	ids := model.NewIdentities()

	path := writeFile(t, `
workers:
  - name: "Dr. Jane Doe (JDO)"
    modifier: 0.5
    skills:
      all: 1
      notfall_mr: w
  - name: "Max Muster"
    skills:
      ct: -1
`)

	r, err := LoadFile(path, catalog, ids)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	jane, ok := r.Lookup("JDO")
	require.True(t, ok)
	assert.Equal(t, "Dr. Jane Doe (JDO)", jane.DisplayName)
	assert.Equal(t, 0.5, jane.Modifier)
	assert.Equal(t, capability.Active, jane.Baseline.Get("normal", "ct"))
	assert.Equal(t, capability.Weighted, jane.Baseline.Get("notfall", "mr"))

	max, ok := r.Lookup("Max Muster")
	require.True(t, ok)
	assert.Equal(t, capability.Excluded, max.Baseline.Get("notfall", "ct"))
	assert.Equal(t, capability.Inactive, max.Baseline.Get("normal", "mr"))

	workers := r.Workers()
	require.Len(t, workers, 2)
	assert.Equal(t, model.WorkerID("JDO"), workers[0].ID)
}

func TestLoadFile_UnknownSkill(t *testing.T) {
	path := writeFile(t, `
workers:
  - name: "A"
    skills:
      pet: 1
`)
	_, err := LoadFile(path, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "unknown skill keys")
}

func TestLoadFile_ValidationError(t *testing.T) {
	path := writeFile(t, `
workers:
  - modifier: 1
`)
	_, err := LoadFile(path, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "roster validation failed")
}

func TestLoadFile_InvalidValue(t *testing.T) {
	path := writeFile(t, `
workers:
  - name: "A"
    skills:
      ct: 5
`)
	_, err := LoadFile(path, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "failed to parse roster file")
}

func TestParse(t *testing.T) {
	catalog := testCatalog(t)
	raw := [][]interface{}{
		{"Name", "Modifier", "ct", "notfall_mr"},
		{"Anna (AN)", "0,8", "1", "w"},
		{"", "", "", ""},
		{"Bert (BE)", "", "-1"},
	}

	r, err := Parse(raw, catalog, model.NewIdentities())
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	anna, ok := r.Lookup("AN")
	require.True(t, ok)
	assert.Equal(t, 0.8, anna.Modifier)
	assert.Equal(t, 1.0, anna.GlobalModifier)
	assert.Equal(t, capability.Active, anna.Baseline.Get("notfall", "ct"))
	assert.Equal(t, capability.Weighted, anna.Baseline.Get("notfall", "mr"))

	bert, ok := r.Lookup("BE")
	require.True(t, ok)
	assert.Equal(t, capability.Excluded, bert.Baseline.Get("normal", "ct"))
	assert.Equal(t, capability.Inactive, bert.Baseline.Get("notfall", "mr"))
}

func TestParse_BlankCellKeepsBroaderValue(t *testing.T) {
	raw := [][]interface{}{
		{"Name", "ct", "notfall_ct"},
		{"Max Muster", "-1", ""},
		{"Nina Nord", "1", "  "},
	}

	r, err := Parse(raw, testCatalog(t), model.NewIdentities())
	require.NoError(t, err)

	tests := []struct {
		name       string
		capability string
		want       capability.Value
	}{
		{name: "Max Muster", capability: "normal", want: capability.Excluded},
		{name: "Max Muster", capability: "notfall", want: capability.Excluded},
		{name: "Nina Nord", capability: "normal", want: capability.Active},
		{name: "Nina Nord", capability: "notfall", want: capability.Active},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.capability, func(t *testing.T) {
			worker, ok := r.Lookup(model.WorkerID(tt.name))
			require.True(t, ok)
			assert.Equal(t, tt.want, worker.Baseline.Get(tt.capability, "ct"))
		})
	}
}

func TestParse_MissingNameColumn(t *testing.T) {
	_, err := Parse([][]interface{}{{"ct"}}, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "missing required field")

	_, err = Parse(nil, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "no header row")
}

func TestParse_UnknownColumn(t *testing.T) {
	_, err := Parse([][]interface{}{{"Name", "pet"}}, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "unknown skill column")
}

func TestParse_InvalidCell(t *testing.T) {
	raw := [][]interface{}{
		{"Name", "ct"},
		{"A", "maybe"},
	}
	_, err := Parse(raw, testCatalog(t), model.NewIdentities())
	assert.ErrorContains(t, err, "row 2")
}

func TestSetValue(t *testing.T) {
	catalog := testCatalog(t)
	r := New(catalog)
	r.Add(&Worker{ID: "A"})

	require.NoError(t, r.SetValue("A", "mr", capability.Active))
	assert.Equal(t, capability.Active, r.Baseline("A").Get("normal", "mr"))
	assert.Equal(t, capability.Active, r.Baseline("A").Get("notfall", "mr"))
	assert.Equal(t, capability.Inactive, r.Baseline("A").Get("normal", "ct"))

	assert.Error(t, r.SetValue("missing", "mr", capability.Active))
	assert.Error(t, r.SetValue("A", "pet", capability.Active))

	assert.Len(t, r.Baseline("unknown"), 4)
}
