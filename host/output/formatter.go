package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"stackctl/protocol"
)

// Formats accepted by NewFormatter
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formatter defines the interface for output formatting.
type Formatter interface {
	Format(data any) string
}

// ParseFormat validates a format name
func ParseFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// NewFormatter returns a Formatter for the given format string.
// Unknown formats fall back to "table".
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// MessageView is the printable form of a protocol.Message
type MessageView struct {
	Kind    string           `json:"kind" yaml:"kind"`
	Tag     uint8            `json:"tag" yaml:"tag"`
	Payload protocol.Payload `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// ViewMessage converts m for printing
func ViewMessage(m protocol.Message) MessageView {
	return MessageView{Kind: m.Kind.String(), Tag: uint8(m.Kind), Payload: m.Payload}
}

// KindRow describes one registry entry
type KindRow struct {
	Tag      uint8  `json:"tag" yaml:"tag"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
	Payload  string `json:"payload" yaml:"payload"`
	Fields   string `json:"fields" yaml:"fields"`
}

// KindRows lists the message registry in tag order
func KindRows() []KindRow {
	kinds := protocol.Kinds()
	rows := make([]KindRow, 0, len(kinds))
	for _, info := range kinds {
		row := KindRow{Tag: uint8(info.Kind), Name: info.Name, Category: info.Category.String(), Payload: "-", Fields: "-"}
		if d := info.Descriptor; d != nil {
			fields := make([]string, len(d.Fields))
			for i, f := range d.Fields {
				fields[i] = f.String()
			}
			row.Payload = fmt.Sprintf("%s (%d bytes)", d.Name, d.Size)
			row.Fields = strings.Join(fields, " ")
		}
		rows = append(rows, row)
	}
	return rows
}

// TableFormatter formats data as aligned text tables using tabwriter.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	switch d := data.(type) {
	case MessageView:
		writeMessage(w, d)
		w.Flush()
		return buf.String()
	case protocol.Message:
		writeMessage(w, ViewMessage(d))
		w.Flush()
		return buf.String()
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			return "No results.\n"
		}
		elem := v.Index(0)
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if elem.Kind() == reflect.Struct {
			t := elem.Type()
			headers := make([]string, t.NumField())
			for i := 0; i < t.NumField(); i++ {
				headers[i] = strings.ToUpper(columnName(t.Field(i)))
			}
			fmt.Fprintln(w, strings.Join(headers, "\t"))

			for i := 0; i < v.Len(); i++ {
				row := v.Index(i)
				if row.Kind() == reflect.Ptr {
					row = row.Elem()
				}
				vals := make([]string, row.NumField())
				for j := 0; j < row.NumField(); j++ {
					vals[j] = fmt.Sprintf("%v", row.Field(j).Interface())
				}
				fmt.Fprintln(w, strings.Join(vals, "\t"))
			}
		} else {
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(w, v.Index(i).Interface())
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			fmt.Fprintf(w, "%s:\t%v\n", columnName(t.Field(i)), v.Field(i).Interface())
		}
	default:
		fmt.Fprintln(w, data)
	}

	w.Flush()
	return buf.String()
}

func writeMessage(w *tabwriter.Writer, m MessageView) {
	fmt.Fprintf(w, "kind:\t%s\n", m.Kind)
	for _, fv := range protocol.FieldValues(m.Payload) {
		fmt.Fprintf(w, "%s:\t%v\n", fv.Name, fv.Value)
	}
}

// columnName prefers the json tag so tables match the other formats
func columnName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return f.Name
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any) string {
	if m, ok := data.(protocol.Message); ok {
		data = ViewMessage(m)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any) string {
	if m, ok := data.(protocol.Message); ok {
		data = ViewMessage(m)
	}
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
