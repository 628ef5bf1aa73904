// Package engine ties the pipeline together: request matching, field
// resolution against the lookup database, template rendering, and
// transmission to the printer. One resolution core serves both calling
// styles: the stateless web path runs it blocking inside the request,
// the session path runs it on a background goroutine with a completion
// channel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orrn/labelflow/internal/descriptor"
	"github.com/orrn/labelflow/internal/faults"
	"github.com/orrn/labelflow/internal/match"
	"github.com/orrn/labelflow/internal/printers"
	"github.com/orrn/labelflow/internal/query"
	"github.com/orrn/labelflow/internal/store"
	"github.com/orrn/labelflow/internal/template"
)

// ErrResolveTimeout surfaces when a print is requested while a lookup is
// still pending and the wait budget runs out. It wraps ErrDataQuery: from
// the operator's perspective the lookup did not deliver.
var ErrResolveTimeout = fmt.Errorf("%w: lookup still pending", faults.ErrDataQuery)

// Notifier receives print outcome events. Optional.
type Notifier interface {
	PrintCompleted(profile, printer string, labels int)
	PrintFailed(profile, printer string, labels int, errMsg string)
}

type Options struct {
	// TemplateDir is where profile template paths resolve.
	TemplateDir string
	// WaitTimeout bounds how long a print waits for a pending lookup
	// before surfacing a timeout.
	WaitTimeout time.Duration
	// SessionTTL and SweepInterval control idle session expiry.
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

type Engine struct {
	profiles *store.ProfileStore
	printers *store.PrinterStore
	matcher  *match.Matcher
	data     query.DataQuery
	sender   printers.Sender
	notifier Notifier
	filler   *template.Filler
	opts     Options
	log      *logrus.Entry

	sessions *SessionManager
}

func New(profiles *store.ProfileStore, prs *store.PrinterStore, matcher *match.Matcher, data query.DataQuery, sender printers.Sender, notifier Notifier, opts Options, log *logrus.Logger) *Engine {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 5 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}

	e := &Engine{
		profiles: profiles,
		printers: prs,
		matcher:  matcher,
		data:     data,
		sender:   sender,
		notifier: notifier,
		filler:   template.NewFiller(log),
		opts:     opts,
		log:      log.WithField("component", "engine"),
	}
	e.sessions = newSessionManager(e)
	return e
}

func (e *Engine) Sessions() *SessionManager { return e.sessions }

// Start launches the session sweeper; Stop shuts it down.
func (e *Engine) Start() { e.sessions.start() }
func (e *Engine) Stop()  { e.sessions.stop() }

// NewDescriptor builds an empty descriptor for a profile, the starting
// state a web client round-trips.
func (e *Engine) NewDescriptor(profileName string) (descriptor.State, error) {
	p, ok := e.profiles.Get(profileName)
	if !ok {
		return descriptor.State{}, fmt.Errorf("%w: unknown profile %q", faults.ErrArgument, profileName)
	}
	d := descriptor.New(p.Name, p.SearchFields, p.DataFields, p.EditFields, p.DisplayField)
	return d.Snapshot(), nil
}

// markNumericCode flags the descriptor for the alternate barcode lookup:
// the profile defines one and the first search field holds a bare digit
// string, which is what a scanner enters where an operator would type a
// name. The merge later mirrors the looked-up display value back into
// the query fields, replacing the code.
func (e *Engine) markNumericCode(d *descriptor.LabelDescriptor, p *store.Profile) {
	if p.NumericCodeSQL == "" {
		return
	}
	value, _ := d.FieldValue(d.FirstSearchField())
	d.SetNumericCodeQuery(isNumericCode(value))
}

func isNumericCode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// resolve is the single field-resolution implementation. It builds the
// profile's lookup SQL from the descriptor's search values, runs it, and
// merges the outcome into the descriptor. Every failure is folded into
// the descriptor's status before it is returned.
func (e *Engine) resolve(ctx context.Context, d *descriptor.LabelDescriptor, p *store.Profile) error {
	e.markNumericCode(d, p)

	sqlText := p.QuerySQL
	if d.IsNumericCodeQuery() && p.NumericCodeSQL != "" {
		sqlText = p.NumericCodeSQL
	}

	if err := query.ValidateSelect(sqlText, d.ResultValues()); err != nil {
		_ = d.ApplyResult(descriptor.StatusFailed, nil, err.Error())
		return err
	}

	stmt, err := query.ReplaceQueryVariables(sqlText, d.QueryValues())
	if err != nil {
		_ = d.ApplyResult(descriptor.StatusFailed, nil, err.Error())
		return err
	}

	rows, err := e.data.QueryList(ctx, stmt)
	if err != nil {
		_ = d.ApplyResult(descriptor.StatusFailed, nil, err.Error())
		return err
	}
	if len(rows) == 0 {
		err := fmt.Errorf("%w: lookup matched no row", faults.ErrNoDataFound)
		_ = d.ApplyResult(descriptor.StatusFailed, nil, err.Error())
		return err
	}

	// The merge itself enforces result-field coverage, applying what it
	// can before failing on drift.
	return d.ApplyResult(descriptor.StatusSuccess, rows[0], "")
}

// rebuild reconstructs a descriptor from client-held state against the
// profile's declared field lists.
func (e *Engine) rebuild(st descriptor.State) (*descriptor.LabelDescriptor, *store.Profile, error) {
	p, ok := e.profiles.Get(st.Profile)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown profile %q", faults.ErrArgument, st.Profile)
	}
	d := descriptor.FromState(st, p.SearchFields, p.DataFields, p.EditFields, p.DisplayField)
	return d, p, nil
}

// EditFieldWeb is the stateless edit path. The whole descriptor arrives
// from the client; the server reconciles only the field named by
// CurrentEditField — concurrent tabs and out-of-order responses must not
// let stale client copies clobber unrelated fields. Editing the last
// search field runs the lookup synchronously before the state goes back.
func (e *Engine) EditFieldWeb(ctx context.Context, st descriptor.State) (descriptor.State, error) {
	if st.CurrentEditField == "" {
		return st, fmt.Errorf("%w: no current edit field", faults.ErrArgument)
	}
	if st.LabelCount == 0 {
		return st, fmt.Errorf("%w: label count must not be zero", faults.ErrArgument)
	}

	d, p, err := e.rebuild(st)
	if err != nil {
		return st, err
	}

	value, ok := d.FieldValue(st.CurrentEditField)
	if !ok {
		// Not a dictionary field; the label count travels in its own slot.
		value = fmt.Sprintf("%d", st.LabelCount)
	}

	outcome := d.EditField(st.CurrentEditField, value)
	if outcome.FiresQuery {
		if err := e.resolve(ctx, d, p); err != nil {
			return d.Snapshot(), err
		}
	}

	return d.Snapshot(), nil
}

// Options runs the wildcard/list lookup and returns candidate rows for
// operator disambiguation. Zero rows is a legitimate empty result here.
func (e *Engine) Options(ctx context.Context, st descriptor.State) ([]map[string]string, error) {
	d, p, err := e.rebuild(st)
	if err != nil {
		return nil, err
	}
	if p.ListSQL == "" {
		return nil, fmt.Errorf("%w: profile %s has no list query", faults.ErrConfiguration, p.Name)
	}

	if err := query.ValidateSelect(p.ListSQL, d.ResultValues()); err != nil {
		return nil, err
	}
	stmt, err := query.ReplaceQueryVariables(p.ListSQL, d.QueryValues())
	if err != nil {
		return nil, err
	}
	rows, err := e.data.QueryList(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return query.FillOptionListValues(d.ResultValues(), rows)
}

// PrintWeb finalizes a web descriptor: completeness check, template fill,
// transmit, clear. The returned state is the cleared descriptor on
// success, the untouched one on failure.
func (e *Engine) PrintWeb(ctx context.Context, st descriptor.State) (descriptor.State, error) {
	d, p, err := e.rebuild(st)
	if err != nil {
		return st, err
	}

	printer, perr := e.defaultPrinter(p)
	if perr != nil {
		return d.Snapshot(), perr
	}

	if err := e.printResolved(ctx, d, p, printer); err != nil {
		return d.Snapshot(), err
	}
	return d.Snapshot(), nil
}

func (e *Engine) defaultPrinter(p *store.Profile) (*store.Printer, error) {
	if p.DefaultPrinter == "" {
		return nil, fmt.Errorf("%w: profile %s has no default printer", faults.ErrConfiguration, p.Name)
	}
	printer, ok := e.printers.Get(p.DefaultPrinter)
	if !ok {
		return nil, fmt.Errorf("%w: printer %q is not configured", faults.ErrConfiguration, p.DefaultPrinter)
	}
	return printer, nil
}

// printResolved renders and transmits a fully resolved descriptor, then
// clears it. Transmission is never retried here: re-running a physical
// print is the operator's call.
func (e *Engine) printResolved(ctx context.Context, d *descriptor.LabelDescriptor, p *store.Profile, printer *store.Printer) error {
	if !d.ReadyToPrint() {
		return fmt.Errorf("%w: descriptor is not ready to print (status %s)", faults.ErrArgument, d.Status())
	}

	tmpl, err := e.loadTemplate(p)
	if err != nil {
		return err
	}

	labels := d.LabelCount()
	zpl, err := e.filler.Fill(tmpl, d.ResultValues(), d.EditValues(), labels)
	if err != nil {
		return err
	}

	if err := e.sender.Send(ctx, zpl, printer); err != nil {
		if e.notifier != nil {
			e.notifier.PrintFailed(p.Name, printer.Name, labels, err.Error())
		}
		return err
	}

	e.log.WithFields(logrus.Fields{
		"profile": p.Name,
		"printer": printer.Name,
		"labels":  labels,
	}).Info("label printed")

	if e.notifier != nil {
		e.notifier.PrintCompleted(p.Name, printer.Name, labels)
	}

	d.Clear()
	return nil
}

func (e *Engine) loadTemplate(p *store.Profile) (string, error) {
	if p.TemplatePath == "" {
		return "", fmt.Errorf("%w: profile %s has no template path", faults.ErrConfiguration, p.Name)
	}
	data, err := os.ReadFile(filepath.Join(e.opts.TemplateDir, p.TemplatePath))
	if err != nil {
		return "", fmt.Errorf("%w: template %s unreadable: %v", faults.ErrConfiguration, p.TemplatePath, err)
	}
	return string(data), nil
}

// IngestReport is what an API request produces.
type IngestReport struct {
	Profile string           `json:"profile"`
	Printer string           `json:"printer"`
	Labels  int              `json:"labels"`
	State   descriptor.State `json:"state"`
}

// Ingest is the external API entry point: match the raw request to a
// profile, build a descriptor from the extracted values, resolve it
// (through the lookup when the profile declares search fields, directly
// from the request otherwise), render and print.
func (e *Engine) Ingest(ctx context.Context, raw string) (*IngestReport, error) {
	res, err := e.matcher.Match(raw)
	if err != nil {
		return nil, err
	}
	p := res.Profile

	d := descriptor.New(p.Name, p.SearchFields, p.DataFields, p.EditFields, p.DisplayField)
	d.SetLabelCount(res.LabelCount)

	// API-sourced fields are strict: the field maps were validated at
	// load time, so a miss here is profile drift, not caller error.
	if err := applyStrict(d, res.EditValues); err != nil {
		return nil, err
	}

	if res.NeedsLookup {
		if err := applyStrict(d, res.SearchValues); err != nil {
			return nil, err
		}
		if err := e.resolve(ctx, d, p); err != nil {
			return nil, err
		}
	} else {
		if err := d.ApplyResult(descriptor.StatusSuccess, res.DataValues, ""); err != nil {
			return nil, err
		}
	}

	if err := e.printResolved(ctx, d, p, res.Printer); err != nil {
		return nil, err
	}

	return &IngestReport{
		Profile: p.Name,
		Printer: res.Printer.Name,
		Labels:  res.LabelCount,
		State:   d.Snapshot(),
	}, nil
}

func applyStrict(d *descriptor.LabelDescriptor, values map[string]string) error {
	for name, value := range values {
		if out := d.EditField(name, value); !out.Known {
			return fmt.Errorf("%w: field %q is not declared for profile %s", faults.ErrConfiguration, name, d.Profile())
		}
	}
	return nil
}

// IsTimeout reports whether err is the pending-lookup timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrResolveTimeout)
}
