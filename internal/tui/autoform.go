package tui

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/text/message"

	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/validation"
)

// AutoForm generates a huh.Form from a struct pointer using reflection.
// It parses the `tui:"..."` tag to configure field properties:
//
//	field=name        catalog field label (i18n.FieldLabel)
//	options=a,b       select instead of free text
//	type=password     masked input
//	type=text         multi-line input
//	validate=key      validator from Validators
//
// Field errors from a previous submission are shown as descriptions.
func AutoForm(v any, p *message.Printer, errs map[string]string) *huh.Form {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		panic("AutoForm requires a pointer to a struct")
	}
	if p == nil {
		p = i18n.NewPrinter(i18n.DefaultLang)
	}

	el := val.Elem()
	t := el.Type()
	var fields []huh.Field

	for i := 0; i < el.NumField(); i++ {
		field := el.Field(i)
		fieldType := t.Field(i)
		tag := fieldType.Tag.Get("tui")
		if tag == "" || field.Kind() != reflect.String {
			continue
		}

		props := parseTag(tag)
		name := props["field"]
		if name == "" {
			name = fieldType.Name
		}
		title := p.Sprintf(i18n.FieldLabel(name))
		desc := errs[name]
		ptr := field.Addr().Interface().(*string)

		switch {
		case props["options"] != "":
			var opts []huh.Option[string]
			for _, o := range strings.Split(props["options"], "|") {
				o = strings.TrimSpace(o)
				opts = append(opts, huh.NewOption(o, o))
			}
			fields = append(fields, huh.NewSelect[string]().
				Title(title).
				Description(desc).
				Options(opts...).
				Value(ptr))

		case props["type"] == "text":
			text := huh.NewText().
				Title(title).
				Description(desc).
				Lines(6).
				Value(ptr)
			if validator, ok := Validators[props["validate"]]; ok {
				text.Validate(validator(p, name))
			}
			fields = append(fields, text)

		default:
			input := huh.NewInput().
				Title(title).
				Description(desc).
				Value(ptr)
			if props["type"] == "password" {
				input.EchoMode(huh.EchoModePassword)
			}
			if validator, ok := Validators[props["validate"]]; ok {
				input.Validate(validator(p, name))
			}
			fields = append(fields, input)
		}
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithTheme(huh.ThemeBase16()).WithShowHelp(false)
}

// parseTag parses "key=val,key2=val2".
func parseTag(tag string) map[string]string {
	res := make(map[string]string)
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			res[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return res
}

// Validators give inline feedback while typing. The resource controller
// validates again on submit.
var Validators = map[string]func(p *message.Printer, field string) func(string) error{
	"required": func(p *message.Printer, field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s", p.Sprintf(i18n.ValidationRequired, p.Sprintf(i18n.FieldLabel(field))))
			}
			return nil
		}
	},
	"url": func(p *message.Printer, _ string) func(string) error {
		return func(s string) error {
			if validation.ValidateURL(s) != nil {
				return fmt.Errorf("%s", p.Sprintf(i18n.ValidationURL))
			}
			return nil
		}
	},
}

// joinFields renders field errors in a stable order.
func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = fields[k]
	}
	return strings.Join(msgs, "; ")
}
