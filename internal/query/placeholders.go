// Package query implements the SQL placeholder engine and the DataQuery
// capability the resolution pipeline runs lookups through. SQL statements
// are profile-authored text with {FIELD} placeholders; the engine enforces
// a bidirectional match between placeholders and declared fields before
// any substitution happens.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orrn/labelflow/internal/faults"
)

// extractPlaceholders returns the {NAME} tokens of s in order of
// appearance. An opening brace with no closing brace is a configuration
// defect.
func extractPlaceholders(s string) ([]string, error) {
	var names []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := strings.IndexByte(s[i+1:], '}')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated placeholder at offset %d in SQL", faults.ErrConfiguration, i)
		}
		names = append(names, s[i+1:i+1+end])
		i += end + 1
	}
	return names, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateSearchFields checks that the {FIELD} placeholders of sqlText and
// the keys of queryVars form a bijection, case-insensitively. Both a
// declared field with no placeholder and a placeholder with no declared
// field are configuration defects: either one means the profile's SQL and
// its field list have drifted apart.
func ValidateSearchFields(sqlText string, queryVars map[string]string) error {
	upper := strings.ToUpper(sqlText)
	placeholders, err := extractPlaceholders(upper)
	if err != nil {
		return err
	}

	if len(placeholders) > 0 && len(queryVars) == 0 {
		return fmt.Errorf("%w: SQL contains placeholders but no search fields are declared", faults.ErrConfiguration)
	}

	phSet := make(map[string]bool, len(placeholders))
	for _, name := range placeholders {
		phSet[name] = true
	}

	keySet := make(map[string]bool, len(queryVars))
	for _, key := range sortedKeys(queryVars) {
		upperKey := strings.ToUpper(key)
		keySet[upperKey] = true
		if !phSet[upperKey] {
			return fmt.Errorf("%w: search field %q is not referenced as {%s} in SQL", faults.ErrConfiguration, key, upperKey)
		}
	}

	for _, name := range placeholders {
		if !keySet[name] {
			return fmt.Errorf("%w: SQL placeholder {%s} has no matching search field", faults.ErrConfiguration, name)
		}
	}

	return nil
}

// ReplaceQueryVariables validates sqlText against dataVars and substitutes
// every {FIELD} placeholder with its value. The SQL text is upper-cased
// before substitution; values keep their original casing.
func ReplaceQueryVariables(sqlText string, dataVars map[string]string) (string, error) {
	if dataVars == nil {
		return "", fmt.Errorf("%w: data variables must not be nil", faults.ErrArgument)
	}
	if err := ValidateSearchFields(sqlText, dataVars); err != nil {
		return "", err
	}

	out := strings.ToUpper(sqlText)
	for key, value := range dataVars {
		out = strings.ReplaceAll(out, "{"+strings.ToUpper(key)+"}", value)
	}
	return out, nil
}

// ValidateSelect checks that every result field appears somewhere in the
// SQL text. Deliberately a weak containment check: subqueries and aliases
// make parsing the SELECT clause unreliable, so a field hiding in a
// subquery passes even when the outer SELECT drops it. The runtime
// row-coverage check in FillReturnValues catches what slips through.
func ValidateSelect(sqlText string, resultVars map[string]string) error {
	upper := strings.ToUpper(sqlText)
	for _, key := range sortedKeys(resultVars) {
		if !strings.Contains(upper, strings.ToUpper(key)) {
			return fmt.Errorf("%w: result field %q does not appear in SQL", faults.ErrConfiguration, key)
		}
	}
	return nil
}

// columnIndex maps upper-cased column names to their actual names.
func columnIndex(row map[string]string) map[string]string {
	idx := make(map[string]string, len(row))
	for col := range row {
		idx[strings.ToUpper(col)] = col
	}
	return idx
}

// FillReturnValues copies the first row's values into dataVars by
// case-insensitive column name. Zero rows is a failure: single-row lookup
// backs a print, and printing needs exactly one matched row. A declared
// field with no matching column means the profile and the database schema
// have drifted.
func FillReturnValues(dataVars map[string]string, rows []map[string]string) (map[string]string, error) {
	if dataVars == nil {
		return nil, fmt.Errorf("%w: data variables must not be nil", faults.ErrArgument)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: query returned no rows", faults.ErrNoDataFound)
	}

	first := rows[0]
	idx := columnIndex(first)
	for _, key := range sortedKeys(dataVars) {
		col, ok := idx[strings.ToUpper(key)]
		if !ok {
			return nil, fmt.Errorf("%w: result column %q missing from query result", faults.ErrSchemaMismatch, key)
		}
		dataVars[key] = first[col]
	}
	return dataVars, nil
}

// FillOptionListValues maps every row onto the declared field set. Unlike
// FillReturnValues, zero rows is a legitimate outcome here: this variant
// backs wildcard search, and "no matches" is an empty option list, not a
// failure.
func FillOptionListValues(dataVars map[string]string, rows []map[string]string) ([]map[string]string, error) {
	if dataVars == nil {
		return nil, fmt.Errorf("%w: data variables must not be nil", faults.ErrArgument)
	}

	options := make([]map[string]string, 0, len(rows))
	for i, row := range rows {
		idx := columnIndex(row)
		option := make(map[string]string, len(dataVars))
		for _, key := range sortedKeys(dataVars) {
			col, ok := idx[strings.ToUpper(key)]
			if !ok {
				return nil, fmt.Errorf("%w: result column %q missing from row %d", faults.ErrSchemaMismatch, key, i)
			}
			option[key] = row[col]
		}
		options = append(options, option)
	}
	return options, nil
}
