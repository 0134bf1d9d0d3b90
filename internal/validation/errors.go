package validation

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/message"

	"grimm.is/rampart/internal/i18n"
)

// Label marks a message argument that names a form field; it is translated
// when the message is localized.
type Label string

// Message is an untranslated field message: an i18n key plus its arguments.
type Message struct {
	Key  string
	Args []any
}

// FieldErrors maps a form field to the first problem found with it.
type FieldErrors map[string]Message

// Add records a problem for field unless one is already recorded.
func (fe FieldErrors) Add(field, key string, args ...any) {
	if _, ok := fe[field]; ok {
		return
	}
	fe[field] = Message{Key: key, Args: args}
}

// Err returns nil when there are no problems, otherwise an *Error.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return &Error{Fields: fe}
}

// Localize renders every message with p.
func (fe FieldErrors) Localize(p *message.Printer) map[string]string {
	if p == nil {
		p = i18n.NewPrinter(i18n.DefaultLang)
	}
	out := make(map[string]string, len(fe))
	for field, m := range fe {
		args := make([]any, len(m.Args))
		for i, a := range m.Args {
			if l, ok := a.(Label); ok {
				a = p.Sprintf(i18n.FieldLabel(string(l)))
			}
			args[i] = a
		}
		out[field] = p.Sprintf(m.Key, args...)
	}
	return out
}

// Error is returned when a form fails client-side validation.
type Error struct {
	Fields FieldErrors
}

func (e *Error) Error() string {
	en := e.Fields.Localize(nil)
	fields := make([]string, 0, len(en))
	for f := range en {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, en[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
