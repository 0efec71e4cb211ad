// Package i18n loads the embedded message catalogs and hands out printers
// for user-facing text.
//
// Catalog files live under locales/<locale>/<namespace>.yaml and use a flat
// subset of YAML: a quoted locale, a quoted namespace, and a messages block
// of quoted key/value pairs. Values are fmt-style formats registered with
// golang.org/x/text/message, so printers format them with Sprintf.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// BaseLocale is the locale every key must exist in.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

// Bundle holds catalog messages keyed by locale.
type Bundle struct {
	locales  map[string]map[string]string
	tags     []language.Tag
	names    []string
	builder  *catalog.Builder
	matcher  language.Matcher
	fallback language.Tag
}

var (
	defaultOnce   sync.Once
	defaultBundle *Bundle
	defaultErr    error
)

// Default returns the process-wide bundle built from the embedded catalogs.
func Default() (*Bundle, error) {
	defaultOnce.Do(func() {
		defaultBundle, defaultErr = LoadFromFS(embeddedFS)
	})
	return defaultBundle, defaultErr
}

// LoadFromFS loads every locales/*/*.yaml catalog in fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{locales: map[string]map[string]string{}}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		file, err := parseCatalogFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if dir := path.Base(path.Dir(p)); file.locale != dir {
			return nil, fmt.Errorf("catalog %s: locale %q must match path locale %q", p, file.locale, dir)
		}
		messages, ok := b.locales[file.locale]
		if !ok {
			messages = map[string]string{}
			b.locales[file.locale] = messages
		}
		for key, value := range file.messages {
			if _, exists := messages[key]; exists {
				return nil, fmt.Errorf("catalog %s: duplicate key %q", p, key)
			}
			messages[key] = value
		}
	}
	if _, ok := b.locales[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) build() error {
	b.fallback = language.MustParse(BaseLocale)
	b.builder = catalog.NewBuilder(catalog.Fallback(b.fallback))

	// Base locale first so the matcher falls back to it.
	b.names = append(b.names, BaseLocale)
	for locale := range b.locales {
		if locale != BaseLocale {
			b.names = append(b.names, locale)
		}
	}
	sort.Strings(b.names[1:])

	for _, locale := range b.names {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		b.tags = append(b.tags, tag)
		for key, value := range b.locales[locale] {
			if err := b.builder.SetString(tag, key, value); err != nil {
				return fmt.Errorf("register %s %q: %w", locale, key, err)
			}
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return nil
}

// Locales returns the available locale identifiers, base locale first.
func (b *Bundle) Locales() []string {
	return append([]string(nil), b.names...)
}

// Match resolves a requested locale such as "pt", "pt_BR" or "en-GB" to the
// closest catalog locale.
func (b *Bundle) Match(locale string) string {
	requested := strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if requested == "" {
		return BaseLocale
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return BaseLocale
	}
	_, index, confidence := b.matcher.Match(tag)
	if confidence == language.No {
		return BaseLocale
	}
	return b.names[index]
}

// Printer returns a printer bound to the closest catalog locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	matched := b.Match(locale)
	return message.NewPrinter(language.MustParse(matched), message.Catalog(b.builder))
}

// Message returns the raw catalog format for key, falling back to the base locale.
func (b *Bundle) Message(locale, key string) (string, bool) {
	if value, ok := b.locales[b.Match(locale)][key]; ok {
		return value, true
	}
	value, ok := b.locales[BaseLocale][key]
	return value, ok
}

type catalogFile struct {
	locale    string
	namespace string
	messages  map[string]string
}

func parseCatalogFile(data []byte) (catalogFile, error) {
	out := catalogFile{messages: map[string]string{}}
	inMessages := false

	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "locale:"):
			value, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(line, "locale:")))
			if err != nil {
				return catalogFile{}, fmt.Errorf("parse locale: %w", err)
			}
			out.locale = value
		case strings.HasPrefix(line, "namespace:"):
			value, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(line, "namespace:")))
			if err != nil {
				return catalogFile{}, fmt.Errorf("parse namespace: %w", err)
			}
			out.namespace = value
		case line == "messages:":
			inMessages = true
		default:
			if !inMessages {
				return catalogFile{}, fmt.Errorf("unexpected line %q", line)
			}
			key, value, err := parseMessageEntry(line)
			if err != nil {
				return catalogFile{}, fmt.Errorf("parse message entry %q: %w", line, err)
			}
			out.messages[key] = value
		}
	}

	switch {
	case out.locale == "":
		return catalogFile{}, fmt.Errorf("missing locale")
	case out.namespace == "":
		return catalogFile{}, fmt.Errorf("missing namespace")
	case len(out.messages) == 0:
		return catalogFile{}, fmt.Errorf("missing messages")
	}
	return out, nil
}

func parseMessageEntry(line string) (string, string, error) {
	keyToken, rest, err := splitQuotedToken(line)
	if err != nil {
		return "", "", err
	}
	key, err := strconv.Unquote(keyToken)
	if err != nil {
		return "", "", fmt.Errorf("unquote key: %w", err)
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, ":") {
		return "", "", fmt.Errorf("missing ':' separator")
	}
	value, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(rest, ":")))
	if err != nil {
		return "", "", fmt.Errorf("unquote value: %w", err)
	}
	return key, value, nil
}

func splitQuotedToken(line string) (string, string, error) {
	if !strings.HasPrefix(line, "\"") {
		return "", "", fmt.Errorf("expected quoted token")
	}
	escaped := false
	for i := 1; i < len(line); i++ {
		switch ch := line[i]; {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			return line[:i+1], line[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("unterminated quoted token")
}
