// Package descriptor holds the mutable resolution state for a single
// label instance: three field dictionaries, the lookup status machine,
// and the merge that folds asynchronous database results into the state
// without clobbering unrelated fields.
package descriptor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/orrn/labelflow/internal/faults"
	"github.com/orrn/labelflow/internal/fieldset"
)

// QueryStatus tracks the lookup lifecycle for one descriptor.
// NoQuery -> Pending -> Success|Failed. The terminal states go back to
// Pending when a new triggering edit occurs, and back to NoQuery only
// through Clear.
type QueryStatus int

const (
	StatusNoQuery QueryStatus = iota
	StatusPending
	StatusSuccess
	StatusFailed
)

func (s QueryStatus) String() string {
	switch s {
	case StatusNoQuery:
		return "no_query"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CountField is the reserved field name that routes an edit to the label
// count instead of a field dictionary.
const CountField = "LabelCount"

// LabelDescriptor is exclusively owned by the request or session that
// created it. The web path rebuilds one from client-held state on every
// request; the desktop-style session path keeps one alive and shares it
// between the caller and a background query goroutine, so every mutation
// goes through the descriptor's lock.
type LabelDescriptor struct {
	mu sync.Mutex

	profile      string
	queryFields  *fieldset.FieldSet
	resultFields *fieldset.FieldSet
	editFields   *fieldset.FieldSet
	displayField string

	currentEditField   string
	status             QueryStatus
	statusText         string
	isNumericCodeQuery bool
	labelCount         int
	errorMessage       string
}

// New builds a descriptor for a profile's field lists with every value
// empty and the label count clamped to 1.
func New(profile string, searchFields, dataFields, editFields []string, displayField string) *LabelDescriptor {
	return &LabelDescriptor{
		profile:      profile,
		queryFields:  fieldset.New(searchFields),
		resultFields: fieldset.New(dataFields),
		editFields:   fieldset.New(editFields),
		displayField: displayField,
		status:       StatusNoQuery,
		labelCount:   1,
	}
}

func (d *LabelDescriptor) Profile() string { return d.profile }

// FirstSearchField and LastSearchField derive from declaration order of
// the query fields. The last search field is the lookup trigger.
func (d *LabelDescriptor) FirstSearchField() string { return d.queryFields.First() }
func (d *LabelDescriptor) LastSearchField() string  { return d.queryFields.Last() }
func (d *LabelDescriptor) DisplayField() string     { return d.displayField }

func (d *LabelDescriptor) Status() QueryStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *LabelDescriptor) LabelCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.labelCount
}

// SetLabelCount clamps invalid input to 1.
func (d *LabelDescriptor) SetLabelCount(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 1 {
		n = 1
	}
	d.labelCount = n
}

func (d *LabelDescriptor) SetNumericCodeQuery(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.isNumericCodeQuery = v
}

func (d *LabelDescriptor) IsNumericCodeQuery() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isNumericCodeQuery
}

// QueryValues returns a copy of the search field values, the WHERE-clause
// key material for a lookup.
func (d *LabelDescriptor) QueryValues() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryFields.Values()
}

func (d *LabelDescriptor) ResultValues() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resultFields.Values()
}

func (d *LabelDescriptor) EditValues() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editFields.Values()
}

// FieldValue returns the current value of a field from whichever
// dictionary declares it, editable fields first.
func (d *LabelDescriptor) FieldValue(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.editFields.Get(name); ok {
		return v, true
	}
	if v, ok := d.queryFields.Get(name); ok {
		return v, true
	}
	if v, ok := d.resultFields.Get(name); ok {
		return v, true
	}
	return "", false
}

// EditOutcome reports how an edit was routed.
type EditOutcome struct {
	// Known is false when the name matched none of the dictionaries.
	// Lenient contexts treat that as a no-op with a message; strict
	// contexts turn it into a configuration error.
	Known bool
	// FiresQuery is true when the edit hit the last search field and the
	// descriptor transitioned to Pending.
	FiresQuery bool
	// FiresPrint is true when the edit was a parseable positive label
	// count, the desktop-style finalize trigger.
	FiresPrint bool
}

// EditField routes a single field edit into the query, result and
// editable dictionaries. A name present in more than one dictionary
// updates all of them; that overlap is intentional (a field can be both
// DB-derived and operator-editable). Editing the last search field flips
// the status to Pending; the caller owns actually firing the lookup.
func (d *LabelDescriptor) EditField(name, value string) EditOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editFieldLocked(name, value)
}

func (d *LabelDescriptor) editFieldLocked(name, value string) EditOutcome {
	var out EditOutcome

	if strings.EqualFold(name, CountField) {
		out.Known = true
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			d.labelCount = 1
			d.statusText = fmt.Sprintf("label count %q is not a positive number", value)
			return out
		}
		d.labelCount = n
		out.FiresPrint = true
		return out
	}

	if d.queryFields.Set(name, value) {
		out.Known = true
		if key, _ := d.queryFields.Resolve(name); key == d.queryFields.Last() {
			d.status = StatusPending
			d.statusText = ""
			out.FiresQuery = true
		}
	}
	if d.resultFields.Set(name, value) {
		out.Known = true
	}
	if d.editFields.Set(name, value) {
		out.Known = true
	}

	if !out.Known {
		d.statusText = fmt.Sprintf("field %q is not configured for profile %s", name, d.profile)
		return out
	}

	d.currentEditField = name
	return out
}

// ApplyResult merges a lookup outcome into the descriptor under its lock.
//
// On failure the status flips to Failed and nothing else is touched. A
// successful outcome carrying a nil result is a contract violation between
// the resolver and the descriptor: the status is forced to Failed and an
// internal error returned.
//
// On success every configured result field must be present in the result.
// When one is missing, all available columns are still applied before the
// status flips to Failed and a schema-mismatch error naming the first
// missing field is returned. Update-then-fail is the pinned behavior, not
// an accident; see DESIGN.md.
func (d *LabelDescriptor) ApplyResult(status QueryStatus, result map[string]string, statusText string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if status != StatusSuccess {
		d.status = StatusFailed
		d.statusText = statusText
		return nil
	}

	if result == nil {
		d.status = StatusFailed
		d.statusText = "query reported success without a result"
		return fmt.Errorf("%w: successful query delivered a nil result", faults.ErrInternal)
	}

	index := make(map[string]string, len(result))
	for col := range result {
		index[strings.ToUpper(col)] = col
	}

	missing := ""
	for _, key := range d.resultFields.Keys() {
		col, ok := index[strings.ToUpper(key)]
		if !ok {
			if missing == "" {
				missing = key
			}
			continue
		}
		value := result[col]
		d.resultFields.Set(key, value)
		// Shared names propagate: editable fields configured as result
		// fields pick up the looked-up value, and query fields do too so
		// a numeric-code lookup replaces the entered code with the
		// display value.
		d.editFields.Set(key, value)
		d.queryFields.Set(key, value)
	}

	if missing != "" {
		d.status = StatusFailed
		d.statusText = fmt.Sprintf("result column %q missing", missing)
		return fmt.Errorf("%w: result column %q missing from query result", faults.ErrSchemaMismatch, missing)
	}

	d.status = StatusSuccess
	d.statusText = ""
	return nil
}

// ReadyToPrint is true only once every editable field is non-empty and
// the lookup has succeeded.
func (d *LabelDescriptor) ReadyToPrint() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyLocked()
}

func (d *LabelDescriptor) readyLocked() bool {
	return d.status == StatusSuccess && d.editFields.AllFilled()
}

// Clear resets the descriptor to its freshly constructed form. Used after
// a successful print and on explicit operator clear; it is the only path
// back to NoQuery.
func (d *LabelDescriptor) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queryFields.ClearValues()
	d.resultFields.ClearValues()
	d.editFields.ClearValues()
	d.currentEditField = ""
	d.status = StatusNoQuery
	d.statusText = ""
	d.isNumericCodeQuery = false
	d.labelCount = 1
	d.errorMessage = ""
}
