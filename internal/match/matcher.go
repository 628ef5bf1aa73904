// Package match turns a raw inbound request (JSON object or XML document)
// into a matched profile plus the field values, label count and target
// printer extracted per that profile's configured locators.
package match

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/orrn/labelflow/internal/faults"
	"github.com/orrn/labelflow/internal/store"
)

const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// DetectFormat classifies a raw request body. XML documents must open
// with an XML declaration; JSON requests must be a braced object.
func DetectFormat(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "<?xml"):
		return FormatXML, nil
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: request is neither an XML document nor a JSON object", faults.ErrUnsupportedFormat)
	}
}

// Result is everything a matched request yields: the winning profile, the
// extracted field values in the profile's declared order semantics, the
// label count, and the selected printer.
type Result struct {
	Profile *store.Profile
	Format  string

	// NeedsLookup is true when the profile declares search fields, so the
	// extracted SearchValues feed a database lookup. Otherwise the
	// request carried final DataValues itself.
	NeedsLookup  bool
	SearchValues map[string]string
	DataValues   map[string]string
	EditValues   map[string]string

	LabelCount int
	Printer    *store.Printer
}

type Matcher struct {
	profiles  *store.ProfileStore
	printers  *store.PrinterStore
	schemaDir string
	log       *logrus.Entry
}

func NewMatcher(profiles *store.ProfileStore, printers *store.PrinterStore, schemaDir string, log *logrus.Logger) *Matcher {
	return &Matcher{
		profiles:  profiles,
		printers:  printers,
		schemaDir: schemaDir,
		log:       log.WithField("component", "matcher"),
	}
}

// request is the parsed form a locator evaluates against.
type request struct {
	format string
	raw    string
	flat   map[string]string   // JSON only: top-level scalar properties
	doc    *xmlquery.Node      // XML only
}

// locate evaluates a locator (JSON property or XPath expression) and
// returns the located string value.
func (r *request) locate(locator string) (string, bool) {
	switch r.format {
	case FormatJSON:
		// gjson handles the plain property case and nested paths alike.
		v := gjson.Get(r.raw, locator)
		if !v.Exists() {
			return "", false
		}
		return v.String(), true
	case FormatXML:
		node, err := xmlquery.Query(r.doc, locator)
		if err != nil || node == nil {
			return "", false
		}
		return strings.TrimSpace(node.InnerText()), true
	default:
		return "", false
	}
}

func (m *Matcher) parse(raw string) (*request, error) {
	format, err := DetectFormat(raw)
	if err != nil {
		return nil, err
	}

	r := &request{format: format, raw: raw}
	switch format {
	case FormatJSON:
		flat, err := parseFlatObject(raw)
		if err != nil {
			return nil, err
		}
		r.flat = flat
	case FormatXML:
		doc, err := xmlquery.Parse(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: XML document does not parse: %v", faults.ErrUnsupportedFormat, err)
		}
		r.doc = doc
	}
	return r, nil
}

// conditionsMatch evaluates a profile's condition map: every condition
// must hold for the profile to be a candidate.
func (r *request) conditionsMatch(rules *store.FormatRules) bool {
	if rules == nil || len(rules.Conditions) == 0 {
		return false
	}
	for locator, expected := range rules.Conditions {
		var value string
		var ok bool
		if r.format == FormatJSON {
			// Conditions address top-level properties only; a request
			// that nests the property does not match.
			value, ok = r.flat[locator]
		} else {
			value, ok = r.locate(locator)
		}
		if !ok || value != expected {
			return false
		}
	}
	return true
}

// Match runs the full pipeline: detect format, pick the profile, validate
// the request against the profile's schema, extract fields and label
// count, and select the target printer.
func (m *Matcher) Match(raw string) (*Result, error) {
	req, err := m.parse(raw)
	if err != nil {
		return nil, err
	}

	profile, rules, err := m.selectProfile(req)
	if err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"profile": profile.Name,
		"format":  req.format,
	}).Debug("request matched profile")

	if err := m.validate(req, rules); err != nil {
		return nil, err
	}

	result := &Result{
		Profile: profile,
		Format:  req.format,
	}

	if err := m.extractFields(req, profile, rules, result); err != nil {
		return nil, err
	}
	if err := m.extractLabelCount(req, rules, result); err != nil {
		return nil, err
	}
	if err := m.selectPrinter(req, profile, rules, result); err != nil {
		return nil, err
	}

	return result, nil
}

// selectProfile collects every profile whose conditions all hold and
// resolves ambiguity by specificity: the candidate with the most
// conditions wins, ties broken by configuration order. Specificity is
// what lets one profile's condition set be a strict subset of another's.
func (m *Matcher) selectProfile(req *request) (*store.Profile, *store.FormatRules, error) {
	var (
		best      *store.Profile
		bestRules *store.FormatRules
		bestCount = -1
	)

	for _, p := range m.profiles.List() {
		rules := p.Rules(req.format)
		if !req.conditionsMatch(rules) {
			continue
		}
		if len(rules.Conditions) > bestCount {
			best = p
			bestRules = rules
			bestCount = len(rules.Conditions)
		}
	}

	if best == nil {
		return nil, nil, fmt.Errorf("%w: no configured profile accepts this %s request", faults.ErrNoProfileMatch, req.format)
	}
	return best, bestRules, nil
}

// extractFields pulls the declared field values out of the request. When
// the profile declares search fields the request must carry them (the
// lookup produces the data fields); otherwise the request carries the
// final data values directly. Edit fields are always extracted. A
// declared field with no locator is a profile defect; a locator that
// resolves to nothing is a caller fault.
func (m *Matcher) extractFields(req *request, profile *store.Profile, rules *store.FormatRules, result *Result) error {
	result.NeedsLookup = len(profile.SearchFields) > 0

	if result.NeedsLookup {
		values, err := extract(req, profile.Name, profile.SearchFields, rules.SearchFields)
		if err != nil {
			return err
		}
		result.SearchValues = values
	} else {
		values, err := extract(req, profile.Name, profile.DataFields, rules.DataFields)
		if err != nil {
			return err
		}
		result.DataValues = values
	}

	values, err := extract(req, profile.Name, profile.EditFields, rules.EditFields)
	if err != nil {
		return err
	}
	result.EditValues = values
	return nil
}

func extract(req *request, profileName string, fields []string, locators map[string]string) (map[string]string, error) {
	index := make(map[string]string, len(locators))
	for field, locator := range locators {
		index[strings.ToUpper(field)] = locator
	}

	values := make(map[string]string, len(fields))
	for _, field := range fields {
		locator, ok := index[strings.ToUpper(field)]
		if !ok {
			return nil, fmt.Errorf("%w: profile %s declares field %q without a locator", faults.ErrConfiguration, profileName, field)
		}
		value, ok := req.locate(locator)
		if !ok {
			return nil, fmt.Errorf("%w: request carries no value for field %q", faults.ErrArgument, field)
		}
		values[field] = value
	}
	return values, nil
}

func (m *Matcher) extractLabelCount(req *request, rules *store.FormatRules, result *Result) error {
	if rules.LabelCount == "" {
		return fmt.Errorf("%w: profile %s has no label count locator", faults.ErrConfiguration, result.Profile.Name)
	}
	raw, ok := req.locate(rules.LabelCount)
	if !ok {
		return fmt.Errorf("%w: request carries no label count", faults.ErrArgument)
	}
	count, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || count < 1 {
		return fmt.Errorf("%w: label count %q is not a positive number", faults.ErrArgument, raw)
	}
	result.LabelCount = count
	return nil
}

// selectPrinter picks the target printer. With no locators configured the
// profile default is mandatory. With locators, every one that resolves
// contributes a candidate name (locators that resolve to nothing are
// skipped: they are alternate optional spellings), and the first
// configured printer appearing among the candidates wins. Candidates that
// name no configured printer fall back to the profile default.
func (m *Matcher) selectPrinter(req *request, profile *store.Profile, rules *store.FormatRules, result *Result) error {
	defaultPrinter := func() (*store.Printer, error) {
		if profile.DefaultPrinter == "" {
			return nil, fmt.Errorf("%w: profile %s selects no printer and has no default", faults.ErrConfiguration, profile.Name)
		}
		p, ok := m.printers.Get(profile.DefaultPrinter)
		if !ok {
			return nil, fmt.Errorf("%w: profile %s default printer %q is not configured", faults.ErrConfiguration, profile.Name, profile.DefaultPrinter)
		}
		return p, nil
	}

	if len(rules.PrinterLocators) == 0 {
		p, err := defaultPrinter()
		if err != nil {
			return err
		}
		result.Printer = p
		return nil
	}

	candidates := make(map[string]bool)
	for _, locator := range rules.PrinterLocators {
		if value, ok := req.locate(locator); ok && value != "" {
			candidates[value] = true
		}
	}

	for _, p := range m.printers.List() {
		if candidates[p.Name] {
			result.Printer = p
			return nil
		}
	}

	p, err := defaultPrinter()
	if err != nil {
		return err
	}
	result.Printer = p
	return nil
}
