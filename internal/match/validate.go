package match

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orrn/labelflow/internal/faults"
	"github.com/orrn/labelflow/internal/store"
)

// parseFlatObject parses a JSON request into its top-level scalar
// properties. The matching contract requires a single flat object:
// nested objects or arrays are not a valid match target.
func parseFlatObject(raw string) (map[string]string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("%w: request is not a JSON object: %v", faults.ErrUnsupportedFormat, err)
	}

	flat := make(map[string]string, len(obj))
	for key, value := range obj {
		switch v := value.(type) {
		case string:
			flat[key] = v
		case float64:
			flat[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			flat[key] = fmt.Sprintf("%t", v)
		case nil:
			flat[key] = ""
		default:
			return nil, fmt.Errorf("%w: JSON request must be a flat object, property %q is nested", faults.ErrUnsupportedFormat, key)
		}
	}
	return flat, nil
}

// validate checks the matched request against the profile's schema
// option. Matching a profile and then accepting malformed input would
// push a config defect downstream, so validation failures are hard
// errors with per-error detail.
func (m *Matcher) validate(req *request, rules *store.FormatRules) error {
	mode := rules.Validation
	if mode == "" || mode == store.ValidationNone {
		return nil
	}

	if req.format == FormatJSON {
		return m.validateJSON(req, rules, mode)
	}
	return m.validateXML(req, rules, mode)
}

func (m *Matcher) validateJSON(req *request, rules *store.FormatRules, mode string) error {
	var schemaRef string
	switch mode {
	case store.ValidationSchema:
		schemaRef = "file://" + filepath.Join(m.schemaDir, rules.SchemaFile)
	case store.ValidationEmbedded:
		ref, ok := req.flat["$schema"]
		if !ok || ref == "" {
			return fmt.Errorf("%w: request embeds no $schema reference", faults.ErrValidation)
		}
		schemaRef = ref
	}

	schemaLoader := gojsonschema.NewReferenceLoader(schemaRef)
	documentLoader := gojsonschema.NewStringLoader(req.raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%w: schema %s could not be evaluated: %v", faults.ErrConfiguration, schemaRef, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return fmt.Errorf("%w: %s", faults.ErrValidation, strings.Join(details, "; "))
	}
	return nil
}

// validateXML covers what pure Go can: the document parsed (well-formed),
// and when the profile pins a schema, the document must reference it in
// its DOCTYPE or schemaLocation. Full DTD content validation needs
// libxml2 and is deliberately out; see DESIGN.md.
func (m *Matcher) validateXML(req *request, rules *store.FormatRules, mode string) error {
	switch mode {
	case store.ValidationSchema:
		name := rules.SchemaFile
		if !strings.Contains(req.raw, name) {
			return fmt.Errorf("%w: document does not reference required schema %q", faults.ErrValidation, name)
		}
	case store.ValidationEmbedded:
		if !strings.Contains(req.raw, "<!DOCTYPE") && !strings.Contains(req.raw, "schemaLocation") {
			return fmt.Errorf("%w: document embeds no schema reference", faults.ErrValidation)
		}
	}
	return nil
}
