package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"
)

// PropertyProvider lets a command body supply its own displayable property
// values instead of having them derived by reflection.
type PropertyProvider interface {
	CommandProperties() map[string]string
}

var templatePlaceholder = regexp.MustCompile(`\{([^{}]+)\}`)

// ResolveSummary renders the per-instance display name for a command from
// its definition's name template and displayable property values. Template
// placeholders with no matching property are left in place so a bad
// template is visible rather than silently blank.
func ResolveSummary(def *CommandDefinition, props map[string]string) string {
	if strings.TrimSpace(def.NameTemplate) == "" {
		return titleCase(def.Name)
	}
	return templatePlaceholder.ReplaceAllStringFunc(def.NameTemplate, func(match string) string {
		key := camelCase(match[1 : len(match)-1])
		if v, ok := props[key]; ok {
			return v
		}
		return match
	})
}

// DisplayProperties extracts the human-readable property values of a
// command body, keyed by camel-case parameter ID. Bodies implementing
// PropertyProvider are used as-is; map bodies are copied; struct bodies are
// read through their exported fields. When the definition declares
// parameters, only declared properties are kept.
func DisplayProperties(def *CommandDefinition, body any) map[string]string {
	props := rawProperties(body)

	if len(def.Parameters) == 0 {
		return props
	}
	filtered := make(map[string]string, len(def.Parameters))
	for _, p := range def.Parameters {
		if v, ok := props[p.ID]; ok {
			filtered[p.ID] = v
		}
	}
	return filtered
}

func rawProperties(body any) map[string]string {
	switch b := body.(type) {
	case nil:
		return map[string]string{}
	case PropertyProvider:
		out := make(map[string]string, len(b.CommandProperties()))
		for k, v := range b.CommandProperties() {
			out[camelCase(k)] = v
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(b))
		for k, v := range b {
			out[camelCase(k)] = v
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(b))
		for k, v := range b {
			out[camelCase(k)] = fmt.Sprint(v)
		}
		return out
	}

	v := reflect.ValueOf(body)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]string{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return map[string]string{}
	}

	out := make(map[string]string)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out[camelCase(f.Name)] = fmt.Sprint(v.Field(i).Interface())
	}
	return out
}

func camelCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
