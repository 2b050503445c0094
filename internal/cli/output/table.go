package output

import (
	"encoding/hex"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter renders a *Table, a struct (one FIELD/VALUE row per
// field) or a slice of structs (one row per element).
type TableFormatter struct {
	NoHeaders bool
}

func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	var t *Table
	switch d := data.(type) {
	case *Table:
		t = d
	case Table:
		t = &d
	default:
		var err error
		if t, err = toTable(data); err != nil {
			return (&JSONFormatter{}).Format(w, data)
		}
	}
	return t.render(w, f.NoHeaders)
}

// Table is tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func toTable(data any) (*Table, error) {
	v := reflect.Indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Struct:
		t := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, f := range columns(v.Type()) {
			t.AddRow(f.name, formatValue(v.Field(f.index)))
		}
		return t, nil
	case reflect.Slice, reflect.Array:
		elem := v.Type().Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return nil, fmt.Errorf("unsupported element type %s", elem)
		}
		cols := columns(elem)
		t := &Table{}
		for _, c := range cols {
			t.Headers = append(t.Headers, strings.ToUpper(c.name))
		}
		for i := 0; i < v.Len(); i++ {
			e := reflect.Indirect(v.Index(i))
			row := make([]string, len(cols))
			for j, c := range cols {
				row[j] = formatValue(e.Field(c.index))
			}
			t.AddRow(row...)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", v.Kind())
	}
}

type column struct {
	name  string
	index int
}

func columns(t reflect.Type) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("table") == "-" {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}
	if t, ok := v.Interface().(time.Time); ok {
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	}
	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if v.Len() == 0 {
				return "-"
			}
			return hex.EncodeToString(v.Bytes())
		}
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprint(v.Interface())
	default:
		return fmt.Sprint(v.Interface())
	}
}
