package view

// SidebarSection groups navigation links under a heading.
type SidebarSection struct {
	Title string
	Links []Link
}

// Link is a navigation entry.
type Link struct {
	Label string
	Href  string
	Icon  string
}

// Table feeds pages/simple_table.html.
type Table struct {
	Columns []string
	Rows    []TableRow
}

// TableRow holds preformatted cells and an optional edit link.
type TableRow struct {
	Cells   []string
	EditURL string
}

// Form feeds pages/simple_form.html.
type Form struct {
	Action      string
	SubmitLabel string
	Fields      []Field
	Errors      map[string]string
}

// Field input kinds.
const (
	FieldText   = "text"
	FieldEmail  = "email"
	FieldDate   = "date"
	FieldSelect = "select"
)

// Field is one form input.
type Field struct {
	Name     string
	Label    string
	Kind     string
	Value    string
	ReadOnly bool
	Options  []Option
}

// Option is one select choice.
type Option struct {
	Value    string
	Label    string
	Selected bool
}
