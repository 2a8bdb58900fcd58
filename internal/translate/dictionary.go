package translate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storeclone/internal/commerce"
)

// ErrNoProvider is returned when no provider is registered for a method.
var ErrNoProvider = errors.New("no translation provider")

// Dictionary is the rule-based bilingual provider. It looks up the whole text
// first and falls back to word-by-word replacement; unknown words are kept.
//
// Glossary files map a target language to source/target pairs:
//
//	es:
//	  shirt: camisa
//	  summer dress: vestido de verano
type Dictionary struct {
	entries map[string]map[string]string
}

// NewDictionary builds a dictionary from language -> (source -> target).
// Lookups are case-insensitive.
func NewDictionary(glossary map[string]map[string]string) *Dictionary {
	d := &Dictionary{entries: make(map[string]map[string]string, len(glossary))}
	for lang, pairs := range glossary {
		m := make(map[string]string, len(pairs))
		for src, dst := range pairs {
			m[strings.ToLower(strings.TrimSpace(src))] = dst
		}
		d.entries[strings.ToLower(lang)] = m
	}
	return d
}

// LoadDictionary reads a YAML glossary file.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	var glossary map[string]map[string]string
	if err := yaml.Unmarshal(data, &glossary); err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}
	return NewDictionary(glossary), nil
}

// TranslateText implements commerce.Translator.
func (d *Dictionary) TranslateText(_ context.Context, req commerce.TranslateRequest) (string, error) {
	if req.Method != "" && req.Method != commerce.MethodDictionary {
		return "", fmt.Errorf("%w for method %q", ErrNoProvider, req.Method)
	}
	pairs, ok := d.entries[strings.ToLower(req.TargetLang)]
	if !ok {
		return "", fmt.Errorf("dictionary has no entries for language %q", req.TargetLang)
	}

	if dst, ok := pairs[strings.ToLower(strings.TrimSpace(req.Text))]; ok {
		return dst, nil
	}

	words := strings.Fields(req.Text)
	for i, w := range words {
		if dst, ok := pairs[strings.ToLower(w)]; ok {
			words[i] = dst
		}
	}
	return strings.Join(words, " "), nil
}

// Providers routes requests to the provider registered for their method.
type Providers map[commerce.Method]commerce.Translator

// TranslateText implements commerce.Translator.
func (p Providers) TranslateText(ctx context.Context, req commerce.TranslateRequest) (string, error) {
	t, ok := p[req.Method]
	if !ok {
		return "", fmt.Errorf("%w for method %q", ErrNoProvider, req.Method)
	}
	return t.TranslateText(ctx, req)
}

// Supports reports whether every method has a registered provider and
// returns the first missing one.
func (p Providers) Supports(methods ...commerce.Method) (commerce.Method, bool) {
	for _, m := range methods {
		if _, ok := p[m]; !ok {
			return m, false
		}
	}
	return "", true
}
