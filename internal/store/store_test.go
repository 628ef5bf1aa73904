package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelflow/internal/faults"
)

func validProfile(name string) *Profile {
	return &Profile{
		Name:         name,
		SearchFields: []string{"Name", "Vintage"},
		DataFields:   []string{"Name", "Price"},
		EditFields:   []string{"Comment"},
		QuerySQL:     "SELECT name, price FROM wines WHERE name = '{Name}' AND vintage = {Vintage}",
		TemplatePath: "wine.zpl",
		JSON: &FormatRules{
			Conditions:   map[string]string{"type": "wine"},
			SearchFields: map[string]string{"Name": "name", "Vintage": "vintage"},
			EditFields:   map[string]string{"Comment": "comment"},
			LabelCount:   "quantity",
		},
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr string
	}{
		{name: "valid", mutate: func(p *Profile) {}},
		{
			name:    "missing name",
			mutate:  func(p *Profile) { p.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "search fields without query sql",
			mutate:  func(p *Profile) { p.QuerySQL = "" },
			wantErr: "no query SQL",
		},
		{
			name: "undeclared field in map",
			mutate: func(p *Profile) {
				p.JSON.SearchFields["Bogus"] = "bogus"
			},
			wantErr: "undeclared field",
		},
		{
			name: "schema validation without schema file",
			mutate: func(p *Profile) {
				p.JSON.Validation = ValidationSchema
			},
			wantErr: "no schema file",
		},
		{
			name: "unknown validation mode",
			mutate: func(p *Profile) {
				p.JSON.Validation = "strict"
			},
			wantErr: "unknown validation mode",
		},
		{
			name: "undeclared display field",
			mutate: func(p *Profile) {
				p.DisplayField = "Nothing"
			},
			wantErr: "display field",
		},
		{
			name: "declared display field ok",
			mutate: func(p *Profile) {
				p.DisplayField = "Name"
			},
		},
		{
			name: "field map keys match case insensitively",
			mutate: func(p *Profile) {
				p.JSON.SearchFields = map[string]string{"NAME": "name", "vintage": "vintage"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile("wine")
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, faults.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfileStoreReplaceAll(t *testing.T) {
	s, err := NewProfileStore([]*Profile{validProfile("a"), validProfile("b")})
	require.NoError(t, err)

	assert.Len(t, s.List(), 2)
	p, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", p.Name)
	_, ok = s.Get("c")
	assert.False(t, ok)

	// Duplicates are rejected and the previous set survives.
	err = s.ReplaceAll([]*Profile{validProfile("a"), validProfile("a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrConfiguration)
	assert.Len(t, s.List(), 2)

	require.NoError(t, s.ReplaceAll([]*Profile{validProfile("c")}))
	assert.Len(t, s.List(), 1)
}

func TestPrinterStore(t *testing.T) {
	s, err := NewPrinterStore([]*Printer{
		{Name: "zebra1", Host: "10.0.0.1"},
		{Name: "zebra2", Host: "10.0.0.2", Port: 6101},
	})
	require.NoError(t, err)

	// Configuration order is preserved for selection priority.
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "zebra1", list[0].Name)

	_, err = NewPrinterStore([]*Printer{{Name: "zebra1"}})
	assert.ErrorIs(t, err, faults.ErrConfiguration)

	_, err = NewPrinterStore([]*Printer{
		{Name: "zebra1", Host: "a"},
		{Name: "zebra1", Host: "b"},
	})
	assert.ErrorIs(t, err, faults.ErrConfiguration)
}

func TestPrinterAddress(t *testing.T) {
	p := &Printer{Name: "z", Host: "10.0.0.1"}
	assert.Equal(t, "10.0.0.1:9100", p.Address())

	p.Port = 6101
	assert.Equal(t, "10.0.0.1:6101", p.Address())
}

func TestLoadProfilesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")

	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"name": "wine",
			"search_fields": ["Name"],
			"data_fields": ["Name", "Price"],
			"edit_fields": ["Comment"],
			"query_sql": "SELECT name, price FROM wines WHERE name = '{Name}'",
			"template_path": "wine.zpl",
			"json": {
				"conditions": {"type": "wine"},
				"search_fields": {"Name": "name"},
				"edit_fields": {"Comment": "comment"},
				"label_count": "quantity"
			}
		}
	]`), 0o644))

	s, err := LoadProfiles(path)
	require.NoError(t, err)
	p, ok := s.Get("wine")
	require.True(t, ok)
	assert.Equal(t, []string{"Name"}, p.SearchFields)
	require.NotNil(t, p.JSON)
	assert.Equal(t, "quantity", p.JSON.LabelCount)

	_, err = LoadProfiles(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0o644))
	_, err = LoadProfiles(bad)
	assert.ErrorIs(t, err, faults.ErrConfiguration)
}

func TestLoadPrintersFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "printers.json")

	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name": "zebra1", "host": "10.0.0.1", "dpi": 203},
		{"name": "zebra2", "host": "10.0.0.2", "port": 6101}
	]`), 0o644))

	s, err := LoadPrinters(path)
	require.NoError(t, err)
	p, ok := s.Get("zebra2")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:6101", p.Address())
}
