package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"

	"grimm.is/rampart/internal/resource"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}

// render writes v in the selected format. rows builds the table form,
// header first.
func render(w io.Writer, v any, rows func() pterm.TableData) error {
	switch output {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	data := rows()
	if len(data) <= 1 {
		fmt.Fprintln(w, pterm.Warning.Sprint("No entries"))
		return nil
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	return nil
}

// keyValues renders label/value pairs as a two-column table.
func keyValues(pairs ...string) pterm.TableData {
	data := pterm.TableData{{"Field", "Value"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		data = append(data, []string{pairs[i], pairs[i+1]})
	}
	return data
}

func success(w io.Writer, msg string) {
	fmt.Fprintln(w, pterm.Success.Sprint(msg))
}

func info(w io.Writer, msg string) {
	fmt.Fprintln(w, pterm.Info.Sprint(msg))
}

// failure turns a failed controller result into an error carrying the
// notice and the per-field problems.
func failure[T any](r resource.Result[T]) error {
	if r.Silent() {
		return explain(r.Err)
	}
	msg := r.Notice
	if msg == "" {
		msg = r.Err.Message
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("%s", msg)
	}
	fields := make([]string, 0, len(r.Fields))
	for f := range r.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var sb strings.Builder
	sb.WriteString(msg)
	for _, f := range fields {
		fmt.Fprintf(&sb, "\n  %s: %s", f, r.Fields[f])
	}
	return fmt.Errorf("%s", sb.String())
}
