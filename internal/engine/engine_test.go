package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelflow/internal/descriptor"
	"github.com/orrn/labelflow/internal/faults"
	"github.com/orrn/labelflow/internal/match"
	"github.com/orrn/labelflow/internal/store"
)

type fakeData struct {
	mu    sync.Mutex
	stmts []string
	rows  []map[string]string
	err   error
	block chan struct{} // when set, QueryList waits for it to close
}

func (f *fakeData) QueryRow(ctx context.Context, sqlText string) (map[string]string, error) {
	rows, err := f.QueryList(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no row", faults.ErrNoDataFound)
	}
	return rows[0], nil
}

func (f *fakeData) QueryList(ctx context.Context, sqlText string) ([]map[string]string, error) {
	f.mu.Lock()
	f.stmts = append(f.stmts, sqlText)
	block := f.block
	rows, err := f.rows, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, err
}

func (f *fakeData) lastStmt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stmts) == 0 {
		return ""
	}
	return f.stmts[len(f.stmts)-1]
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	printer string
	err     error
}

func (f *fakeSender) Send(ctx context.Context, zpl string, printer *store.Printer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, zpl)
	f.printer = printer.Name
	return nil
}

func (f *fakeSender) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed int
	failed    int
}

func (f *fakeNotifier) PrintCompleted(profile, printer string, labels int) {
	f.mu.Lock()
	f.completed++
	f.mu.Unlock()
}

func (f *fakeNotifier) PrintFailed(profile, printer string, labels int, errMsg string) {
	f.mu.Lock()
	f.failed++
	f.mu.Unlock()
}

const (
	wineQuerySQL   = "SELECT name, price, volume FROM wines WHERE name LIKE '{Name}' AND vintage = {Vintage}"
	wineListSQL    = "SELECT name, price, volume FROM wines WHERE name LIKE '{Name}' AND vintage >= {Vintage}"
	wineNumericSQL = "SELECT name, price, volume FROM wines WHERE code = '{Name}' AND vintage = {Vintage}"
)

func wineProfile() *store.Profile {
	return &store.Profile{
		Name:           "wine",
		SearchFields:   []string{"Name", "Vintage"},
		DataFields:     []string{"Name", "Price", "Volume"},
		EditFields:     []string{"Comment", "Price"},
		DisplayField:   "Name",
		QuerySQL:       wineQuerySQL,
		ListSQL:        wineListSQL,
		NumericCodeSQL: wineNumericSQL,
		TemplatePath:   "wine.zpl",
		DefaultPrinter: "zebra1",
		JSON: &store.FormatRules{
			Conditions:   map[string]string{"type": "wine"},
			SearchFields: map[string]string{"Name": "name", "Vintage": "vintage"},
			EditFields:   map[string]string{"Comment": "comment", "Price": "price"},
			LabelCount:   "quantity",
		},
	}
}

func codeProfile() *store.Profile {
	return &store.Profile{
		Name:           "code",
		DataFields:     []string{"Code", "Description"},
		EditFields:     []string{"Code", "Description"},
		TemplatePath:   "code.zpl",
		DefaultPrinter: "zebra1",
		XML: &store.FormatRules{
			Conditions: map[string]string{"/label/@format": "codeLabel"},
			DataFields: map[string]string{
				"Code":        "/label/variable[@name='Code']",
				"Description": "/label/variable[@name='Description']",
			},
			EditFields: map[string]string{
				"Code":        "/label/variable[@name='Code']",
				"Description": "/label/variable[@name='Description']",
			},
			LabelCount: "/label/@Quantity",
		},
	}
}

type fixture struct {
	engine   *Engine
	data     *fakeData
	sender   *fakeSender
	notifier *fakeNotifier
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	profiles, err := store.NewProfileStore([]*store.Profile{wineProfile(), codeProfile()})
	require.NoError(t, err)
	printerStore, err := store.NewPrinterStore([]*store.Printer{{Name: "zebra1", Host: "10.0.0.1"}})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wine.zpl"),
		[]byte("^XA^FDName^^FS^FDPrice^^FS^FDVolume^^FS^FDComment^^FS^PQ1^XZ"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.zpl"),
		[]byte("^XA^FDCode^^FS^FDDescription^^FS^PQ1^XZ"), 0o644))
	opts.TemplateDir = dir

	data := &fakeData{rows: []map[string]string{
		{"name": "Rose", "price": "9.99", "volume": "0.75"},
	}}
	sender := &fakeSender{}
	notifier := &fakeNotifier{}
	matcher := match.NewMatcher(profiles, printerStore, dir, log)

	return &fixture{
		engine:   New(profiles, printerStore, matcher, data, sender, notifier, opts, log),
		data:     data,
		sender:   sender,
		notifier: notifier,
	}
}

func TestNewDescriptor(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	assert.Equal(t, "wine", st.Profile)
	assert.Equal(t, "Name", st.FirstSearchField)
	assert.Equal(t, "Vintage", st.LastSearchField)
	assert.Equal(t, 1, st.LabelCount)
	assert.Equal(t, descriptor.StatusNoQuery, st.Status)

	_, err = fx.engine.NewDescriptor("nope")
	assert.ErrorIs(t, err, faults.ErrArgument)
}

func TestEditFieldWebRunsLookup(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	st.QueryFields["Name"] = "Rose%"
	st.QueryFields["Vintage"] = "2019"
	st.CurrentEditField = "Vintage"

	out, err := fx.engine.EditFieldWeb(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, descriptor.StatusSuccess, out.Status)
	assert.Equal(t, "Rose", out.ResultFields["Name"])
	assert.Equal(t, "9.99", out.ResultFields["Price"])
	assert.Equal(t, "9.99", out.EditFields["Price"], "shared name mirrors into editable fields")
	assert.False(t, out.NumericCodeQuery)
	assert.Contains(t, fx.data.lastStmt(), "'Rose%'")
	assert.Contains(t, fx.data.lastStmt(), "2019")
}

// A bare digit string in the first search field routes the lookup
// through the profile's alternate numeric-code SQL.
func TestEditFieldWebNumericCodeLookup(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	st.QueryFields["Name"] = "93049145"
	st.QueryFields["Vintage"] = "2019"
	st.CurrentEditField = "Vintage"

	out, err := fx.engine.EditFieldWeb(context.Background(), st)
	require.NoError(t, err)

	assert.True(t, out.NumericCodeQuery)
	assert.Contains(t, fx.data.lastStmt(), "CODE = '93049145'")
	assert.Equal(t, descriptor.StatusSuccess, out.Status)
	// The looked-up display value replaces the scanned code.
	assert.Equal(t, "Rose", out.QueryFields["Name"])
	assert.Equal(t, "Rose", out.ResultFields["Name"])
}

func TestEditFieldWebNonTriggeringEdit(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	st.EditFields["Comment"] = "chilled"
	st.CurrentEditField = "Comment"

	out, err := fx.engine.EditFieldWeb(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, descriptor.StatusNoQuery, out.Status)
	assert.Equal(t, "chilled", out.EditFields["Comment"])
	assert.Empty(t, fx.data.lastStmt(), "no lookup fires for a plain edit")
}

func TestEditFieldWebArgumentChecks(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)

	_, err = fx.engine.EditFieldWeb(context.Background(), st)
	assert.ErrorIs(t, err, faults.ErrArgument, "missing current edit field")

	st.CurrentEditField = "Name"
	st.LabelCount = 0
	_, err = fx.engine.EditFieldWeb(context.Background(), st)
	assert.ErrorIs(t, err, faults.ErrArgument, "zero label count")

	st.Profile = "nope"
	st.LabelCount = 1
	_, err = fx.engine.EditFieldWeb(context.Background(), st)
	assert.ErrorIs(t, err, faults.ErrArgument, "unknown profile")
}

func TestEditFieldWebLabelCount(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	st.CurrentEditField = descriptor.CountField
	st.LabelCount = 15

	out, err := fx.engine.EditFieldWeb(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 15, out.LabelCount)
}

func TestEditFieldWebLookupFailures(t *testing.T) {
	t.Run("database error", func(t *testing.T) {
		fx := newFixture(t, Options{})
		fx.data.err = fmt.Errorf("%w: connection refused", faults.ErrDataQuery)

		st, _ := fx.engine.NewDescriptor("wine")
		st.QueryFields["Name"] = "Rose"
		st.QueryFields["Vintage"] = "2019"
		st.CurrentEditField = "Vintage"

		out, err := fx.engine.EditFieldWeb(context.Background(), st)
		require.Error(t, err)
		assert.Equal(t, descriptor.StatusFailed, out.Status)
	})

	t.Run("no matching row", func(t *testing.T) {
		fx := newFixture(t, Options{})
		fx.data.rows = nil

		st, _ := fx.engine.NewDescriptor("wine")
		st.QueryFields["Name"] = "Nothing"
		st.QueryFields["Vintage"] = "1900"
		st.CurrentEditField = "Vintage"

		out, err := fx.engine.EditFieldWeb(context.Background(), st)
		require.Error(t, err)
		assert.ErrorIs(t, err, faults.ErrNoDataFound)
		assert.Equal(t, descriptor.StatusFailed, out.Status)
	})

	t.Run("schema drift applies partial result", func(t *testing.T) {
		fx := newFixture(t, Options{})
		fx.data.rows = []map[string]string{{"name": "Rose", "volume": "0.75"}}

		st, _ := fx.engine.NewDescriptor("wine")
		st.QueryFields["Name"] = "Rose"
		st.QueryFields["Vintage"] = "2019"
		st.CurrentEditField = "Vintage"

		out, err := fx.engine.EditFieldWeb(context.Background(), st)
		require.Error(t, err)
		assert.ErrorIs(t, err, faults.ErrSchemaMismatch)
		assert.Equal(t, descriptor.StatusFailed, out.Status)
		assert.Equal(t, "Rose", out.ResultFields["Name"])
	})
}

func TestOptions(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.data.rows = []map[string]string{
		{"name": "Rose A", "price": "9.99", "volume": "0.75"},
		{"name": "Rose B", "price": "12.50", "volume": "1.5"},
	}

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	st.QueryFields["Name"] = "Rose%"
	st.QueryFields["Vintage"] = "2019"

	rows, err := fx.engine.Options(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Rose A", rows[0]["Name"])
	assert.Equal(t, "Rose B", rows[1]["Name"])

	t.Run("empty list is legitimate", func(t *testing.T) {
		fx.data.rows = nil
		rows, err := fx.engine.Options(context.Background(), st)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("profile without list query", func(t *testing.T) {
		stc, err := fx.engine.NewDescriptor("code")
		require.NoError(t, err)
		_, err = fx.engine.Options(context.Background(), stc)
		assert.ErrorIs(t, err, faults.ErrConfiguration)
	})
}

// resolvedWineState builds a state a client would hold after a successful
// lookup with the editable fields filled in.
func resolvedWineState(t *testing.T, fx *fixture) descriptor.State {
	t.Helper()

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)
	st.QueryFields["Name"] = "Rose"
	st.QueryFields["Vintage"] = "2019"
	st.CurrentEditField = "Vintage"

	st, err = fx.engine.EditFieldWeb(context.Background(), st)
	require.NoError(t, err)

	st.EditFields["Comment"] = "serve chilled"
	st.CurrentEditField = "Comment"
	st, err = fx.engine.EditFieldWeb(context.Background(), st)
	require.NoError(t, err)
	return st
}

func TestPrintWeb(t *testing.T) {
	fx := newFixture(t, Options{})
	st := resolvedWineState(t, fx)
	st.LabelCount = 3

	out, err := fx.engine.PrintWeb(context.Background(), st)
	require.NoError(t, err)

	zpl := fx.sender.lastSent()
	assert.Contains(t, zpl, "^FDRose^")
	assert.Contains(t, zpl, "^FD9.99^")
	assert.Contains(t, zpl, "^FDserve chilled^")
	assert.Contains(t, zpl, "^PQ3")
	assert.Equal(t, "zebra1", fx.sender.printer)
	assert.Equal(t, 1, fx.notifier.completed)

	// The returned state is the cleared descriptor.
	assert.Equal(t, descriptor.StatusNoQuery, out.Status)
	assert.Equal(t, 1, out.LabelCount)
	assert.False(t, out.ReadyToPrint)
}

func TestPrintWebNotReady(t *testing.T) {
	fx := newFixture(t, Options{})

	st, err := fx.engine.NewDescriptor("wine")
	require.NoError(t, err)

	_, err = fx.engine.PrintWeb(context.Background(), st)
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrArgument)
	assert.Empty(t, fx.sender.lastSent())
}

func TestPrintWebSendFailure(t *testing.T) {
	fx := newFixture(t, Options{})
	st := resolvedWineState(t, fx)
	fx.sender.err = fmt.Errorf("dial tcp: connection refused")

	out, err := fx.engine.PrintWeb(context.Background(), st)
	require.Error(t, err)
	assert.Equal(t, 1, fx.notifier.failed)
	// The descriptor survives for a retry.
	assert.Equal(t, descriptor.StatusSuccess, out.Status)
}

func TestIngestWithLookup(t *testing.T) {
	fx := newFixture(t, Options{})

	report, err := fx.engine.Ingest(context.Background(),
		`{"type": "wine", "name": "Rose", "vintage": "2019", "comment": "dry", "price": "", "quantity": 4}`)
	require.NoError(t, err)

	assert.Equal(t, "wine", report.Profile)
	assert.Equal(t, "zebra1", report.Printer)
	assert.Equal(t, 4, report.Labels)

	zpl := fx.sender.lastSent()
	assert.Contains(t, zpl, "^FDRose^")
	assert.Contains(t, zpl, "^FDdry^")
	assert.Contains(t, zpl, "^PQ4")
}

func TestIngestWithoutLookup(t *testing.T) {
	fx := newFixture(t, Options{})

	raw := `<?xml version="1.0"?>` +
		`<label format='codeLabel' Quantity='15'>` +
		`<variable name='Code'>93049145</variable>` +
		`<variable name='Description'>Oaky-Woody</variable>` +
		`</label>`

	report, err := fx.engine.Ingest(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "code", report.Profile)
	assert.Equal(t, 15, report.Labels)
	assert.Empty(t, fx.data.stmts, "no lookup for a profile without search fields")

	zpl := fx.sender.lastSent()
	assert.Contains(t, zpl, "^FD93049145^")
	assert.Contains(t, zpl, "^FDOaky-Woody^")
	assert.Contains(t, zpl, "^PQ15")
}

func TestIngestMatchFailurePropagates(t *testing.T) {
	fx := newFixture(t, Options{})

	_, err := fx.engine.Ingest(context.Background(), `{"type": "beer", "quantity": 1}`)
	assert.ErrorIs(t, err, faults.ErrNoProfileMatch)
	assert.Empty(t, fx.sender.lastSent())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrResolveTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", ErrResolveTimeout)))
	assert.False(t, IsTimeout(faults.ErrDataQuery))
}
