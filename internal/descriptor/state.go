package descriptor

// State is the flat JSON shape the descriptor round-trips across the web
// boundary. The web server is stateless: the client holds the whole
// descriptor and sends it back on every request.
type State struct {
	Profile          string            `json:"profile"`
	QueryFields      map[string]string `json:"query_fields"`
	ResultFields     map[string]string `json:"result_fields"`
	EditFields       map[string]string `json:"edit_fields"`
	CurrentEditField string            `json:"current_edit_field"`
	FirstSearchField string            `json:"first_search_field"`
	LastSearchField  string            `json:"last_search_field"`
	DisplayField     string            `json:"display_field"`
	Status           QueryStatus       `json:"status"`
	StatusText       string            `json:"status_text,omitempty"`
	NumericCodeQuery bool              `json:"numeric_code_query,omitempty"`
	LabelCount       int               `json:"label_count"`
	ReadyToPrint     bool              `json:"ready_to_print"`
	ErrorMessage     string            `json:"error_message,omitempty"`
}

// Snapshot copies the descriptor into its wire shape.
func (d *LabelDescriptor) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return State{
		Profile:          d.profile,
		QueryFields:      d.queryFields.Values(),
		ResultFields:     d.resultFields.Values(),
		EditFields:       d.editFields.Values(),
		CurrentEditField: d.currentEditField,
		FirstSearchField: d.queryFields.First(),
		LastSearchField:  d.queryFields.Last(),
		DisplayField:     d.displayField,
		Status:           d.status,
		StatusText:       d.statusText,
		NumericCodeQuery: d.isNumericCodeQuery,
		LabelCount:       d.labelCount,
		ReadyToPrint:     d.readyLocked(),
		ErrorMessage:     d.errorMessage,
	}
}

// FromState rebuilds a descriptor from client-held state. Field keys come
// from the profile's declared lists, never from the payload, so a client
// cannot grow or rename the dictionaries; payload keys that match nothing
// are dropped.
func FromState(st State, searchFields, dataFields, editFields []string, displayField string) *LabelDescriptor {
	d := New(st.Profile, searchFields, dataFields, editFields, displayField)

	for name, value := range st.QueryFields {
		d.queryFields.Set(name, value)
	}
	for name, value := range st.ResultFields {
		d.resultFields.Set(name, value)
	}
	for name, value := range st.EditFields {
		d.editFields.Set(name, value)
	}

	d.currentEditField = st.CurrentEditField
	d.status = st.Status
	d.statusText = st.StatusText
	d.isNumericCodeQuery = st.NumericCodeQuery
	d.labelCount = st.LabelCount
	if d.labelCount < 1 {
		d.labelCount = 1
	}
	d.errorMessage = st.ErrorMessage

	return d
}
