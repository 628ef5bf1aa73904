// Package template renders a ZPL printer template with resolved field
// values. Field placeholders use the ^FD<name>^ convention; the label
// quantity is the ^PQ command. Field substitution is best-effort (a
// configured field legitimately may not appear on every label variant)
// but a template without a quantity command cannot produce a
// deterministic print job and fails hard.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orrn/labelflow/internal/faults"
)

var quantityRe = regexp.MustCompile(`\^PQ\d*`)

type Filler struct {
	log *logrus.Entry
}

func NewFiller(log *logrus.Logger) *Filler {
	return &Filler{log: log.WithField("component", "template")}
}

// Fill substitutes resolved values into tmpl and rewrites the quantity
// command to labelCount. Result fields go first, skipping names that are
// also editable; editable fields go last so manual edits win when a name
// is shared. Returns the rendered template, or an error aggregating
// everything that went wrong.
func (f *Filler) Fill(tmpl string, resultFields, editFields map[string]string, labelCount int) (string, error) {
	editable := make(map[string]bool, len(editFields))
	for name := range editFields {
		editable[strings.ToUpper(name)] = true
	}

	var problems []string
	out := tmpl

	for name, value := range resultFields {
		if editable[strings.ToUpper(name)] {
			continue
		}
		out = f.substitute(out, name, value, &problems)
	}
	for name, value := range editFields {
		out = f.substitute(out, name, value, &problems)
	}

	if !quantityRe.MatchString(out) {
		problems = append(problems, "template has no ^PQ quantity command")
		return "", fmt.Errorf("%w: %s", faults.ErrTemplate, strings.Join(problems, "; "))
	}
	if labelCount < 1 {
		labelCount = 1
	}
	out = quantityRe.ReplaceAllString(out, fmt.Sprintf("^PQ%d", labelCount))

	return out, nil
}

func (f *Filler) substitute(tmpl, name, value string, problems *[]string) string {
	token := "^FD" + name + "^"
	if !strings.Contains(tmpl, token) {
		// Best-effort: note it and keep going.
		f.log.WithField("field", name).Debug("template has no placeholder for field")
		*problems = append(*problems, fmt.Sprintf("no placeholder for field %q", name))
		return tmpl
	}
	return strings.ReplaceAll(tmpl, token, "^FD"+escapeZPL(value)+"^")
}

// escapeZPL neutralizes ZPL control characters in field data. ^ and ~
// start commands; a raw one inside field data would truncate the field.
func escapeZPL(s string) string {
	s = strings.ReplaceAll(s, "^", " ")
	s = strings.ReplaceAll(s, "~", " ")
	return s
}
