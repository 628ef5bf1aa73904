// Package store holds the configured profiles and printers. Both
// registries are explicit objects handed to the matcher and the engine by
// constructor; there is no ambient package state. Persistence is flat
// JSON files, reloaded wholesale by a single writer while request
// processing is quiesced.
package store

import (
	"fmt"
	"strings"

	"github.com/orrn/labelflow/internal/faults"
)

// Validation modes for inbound requests matched to a profile.
const (
	ValidationNone     = "none"
	ValidationSchema   = "schema_file"
	ValidationEmbedded = "embedded"
)

// FormatRules configures how one content format (JSON or XML) maps onto a
// profile: the conditions a request must satisfy to select the profile,
// and per-field locators (JSON property names or XPath expressions).
type FormatRules struct {
	// Conditions maps a locator to the literal value a request must carry
	// there. All conditions must match for the profile to be a candidate.
	Conditions map[string]string `json:"conditions"`

	SearchFields map[string]string `json:"search_fields,omitempty"`
	DataFields   map[string]string `json:"data_fields,omitempty"`
	EditFields   map[string]string `json:"edit_fields,omitempty"`

	// LabelCount locates the requested label quantity.
	LabelCount string `json:"label_count"`

	// PrinterLocators are optional alternate ways a request names its
	// target printer, evaluated in order.
	PrinterLocators []string `json:"printer_locators,omitempty"`

	Validation string `json:"validation,omitempty"`
	SchemaFile string `json:"schema_file,omitempty"`
}

// Profile is the static configuration for one label format / data source.
type Profile struct {
	Name string `json:"name"`

	// SearchFields form the WHERE-clause key, in priority order; the last
	// one triggers the lookup. DataFields are the SELECT-clause result
	// columns. EditFields are operator-entered and may overlap with
	// DataFields.
	SearchFields []string `json:"search_fields"`
	DataFields   []string `json:"data_fields"`
	EditFields   []string `json:"edit_fields"`

	// DisplayField labels options during wildcard search.
	DisplayField string `json:"display_field,omitempty"`

	// QuerySQL is the single-row lookup, ListSQL the wildcard lookup, and
	// NumericCodeSQL the optional alternate barcode lookup. All use
	// {FIELD} placeholders.
	QuerySQL       string `json:"query_sql,omitempty"`
	ListSQL        string `json:"list_sql,omitempty"`
	NumericCodeSQL string `json:"numeric_code_sql,omitempty"`

	TemplatePath   string `json:"template_path"`
	DefaultPrinter string `json:"default_printer,omitempty"`

	JSON *FormatRules `json:"json,omitempty"`
	XML  *FormatRules `json:"xml,omitempty"`
}

func (p *Profile) declared() map[string]bool {
	set := make(map[string]bool)
	for _, lists := range [][]string{p.SearchFields, p.DataFields, p.EditFields} {
		for _, name := range lists {
			set[strings.ToUpper(name)] = true
		}
	}
	return set
}

// Validate enforces the profile invariants: every field-map key names a
// declared field, and a profile with search fields carries lookup SQL.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: profile name is required", faults.ErrConfiguration)
	}
	if len(p.SearchFields) > 0 && p.QuerySQL == "" {
		return fmt.Errorf("%w: profile %s declares search fields but no query SQL", faults.ErrConfiguration, p.Name)
	}

	declared := p.declared()
	for _, rules := range []*FormatRules{p.JSON, p.XML} {
		if rules == nil {
			continue
		}
		for _, fieldMap := range []map[string]string{rules.SearchFields, rules.DataFields, rules.EditFields} {
			for field := range fieldMap {
				if !declared[strings.ToUpper(field)] {
					return fmt.Errorf("%w: profile %s maps undeclared field %q", faults.ErrConfiguration, p.Name, field)
				}
			}
		}
		switch rules.Validation {
		case "", ValidationNone, ValidationEmbedded:
		case ValidationSchema:
			if rules.SchemaFile == "" {
				return fmt.Errorf("%w: profile %s requires schema validation but names no schema file", faults.ErrConfiguration, p.Name)
			}
		default:
			return fmt.Errorf("%w: profile %s has unknown validation mode %q", faults.ErrConfiguration, p.Name, rules.Validation)
		}
	}

	if p.DisplayField != "" && !declared[strings.ToUpper(p.DisplayField)] {
		return fmt.Errorf("%w: profile %s display field %q is not declared", faults.ErrConfiguration, p.Name, p.DisplayField)
	}

	return nil
}

// Rules returns the format rules for json or xml requests.
func (p *Profile) Rules(format string) *FormatRules {
	switch format {
	case "json":
		return p.JSON
	case "xml":
		return p.XML
	default:
		return nil
	}
}

// Printer is a configured network label printer.
type Printer struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port,omitempty"`
	DPI     int    `json:"dpi,omitempty"`
	Comment string `json:"comment,omitempty"`
}

const defaultPrinterPort = 9100

// Address returns host:port with the raw-print default port applied.
func (p *Printer) Address() string {
	port := p.Port
	if port == 0 {
		port = defaultPrinterPort
	}
	return fmt.Sprintf("%s:%d", p.Host, port)
}
