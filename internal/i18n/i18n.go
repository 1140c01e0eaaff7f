// Package i18n provides the message catalogs used by the renderer.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultLocale = "en"

//go:embed locales/*.yaml
var localesFS embed.FS

// Catalog maps dotted message keys to localized text.
type Catalog struct {
	locale   string
	messages map[string]string
}

func Load(locale string) (*Catalog, error) {
	locale = strings.TrimSpace(strings.ToLower(locale))
	if locale == "" {
		locale = DefaultLocale
	}

	data, err := fs.ReadFile(localesFS, "locales/"+locale+".yaml")
	if err != nil {
		return nil, fmt.Errorf("read catalog (locale = %s, available = %v): %w", locale, Locales(), err)
	}

	var tree map[string]any
	if err = yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse catalog (locale = %s): %w", locale, err)
	}

	messages := make(map[string]string)
	if err = flatten("", tree, messages); err != nil {
		return nil, fmt.Errorf("flatten catalog (locale = %s): %w", locale, err)
	}

	return &Catalog{locale: locale, messages: messages}, nil
}

func Locales() []string {
	entries, err := fs.ReadDir(localesFS, "locales")
	if err != nil {
		return nil
	}

	var locales []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			locales = append(locales, name)
		}
	}
	slices.Sort(locales)

	return locales
}

func (c *Catalog) Locale() string {
	return c.locale
}

// T returns the message for key, or the key itself when it is missing.
func (c *Catalog) T(key string) string {
	if msg, ok := c.messages[key]; ok {
		return msg
	}

	return key
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case string:
			out[key] = val
		default:
			return fmt.Errorf("unsupported value at %s: %T", key, v)
		}
	}

	return nil
}
