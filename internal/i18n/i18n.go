// Package i18n holds the console's small message catalog and the printers
// that render it. Only the strings the core emits (fallback error messages,
// notices, validation messages) live here; view copy stays in the views.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we ship messages for
var SupportedLangs = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(SupportedLangs)

var messages = newCatalog()

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best matching language for an Accept-Language
// style string ("zh-CN,zh;q=0.9").
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	base, _ := tag.Base()
	for _, supported := range SupportedLangs {
		if b, _ := supported.Base(); b == base {
			return supported
		}
	}
	return DefaultLang
}

// NewPrinter returns a message printer bound to the console catalog.
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}

// ForLanguage returns a printer for a config/flag value such as "en" or "zh".
// An empty value falls back to the environment locale.
func ForLanguage(lang string) *message.Printer {
	if strings.TrimSpace(lang) == "" {
		return NewCLIPrinter()
	}
	return NewPrinter(MatchLanguage(lang))
}

// WithPrinter returns a new context with the printer injected
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one
func GetPrinter(ctx context.Context) *message.Printer {
	p, ok := ctx.Value(printerKey).(*message.Printer)
	if !ok {
		return NewPrinter(DefaultLang)
	}
	return p
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" {
		return NewPrinter(DefaultLang)
	}

	// en_US.UTF-8 -> en-US
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	return NewPrinter(MatchLanguage(lang))
}

// Tag returns the language a printer was built for, as an Accept-Language value.
func Tag(p *message.Printer) string {
	if p == nil {
		return DefaultLang.String()
	}
	// message.Printer does not expose its tag; probe a known key instead.
	if p.Sprintf(LangCode) == "zh" {
		return language.SimplifiedChinese.String()
	}
	return DefaultLang.String()
}

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(DefaultLang))
	for key, tr := range translations {
		_ = b.SetString(language.English, key, tr.en)
		_ = b.SetString(language.SimplifiedChinese, key, tr.zh)
	}
	return b
}
