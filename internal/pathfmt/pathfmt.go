// Package pathfmt implements the $VAR-substituted path template engine used
// to bind filesystem paths to logical save identities and to reconstruct
// paths from a variable map.
package pathfmt

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrComponentMismatch is returned by Resolve when a literal template
// component does not equal the corresponding path component.
var ErrComponentMismatch = errors.New("pathfmt: path component does not match template")

// ErrComponentFormat is returned by Resolve when a template component
// contains a variable but the path component does not contain the literal
// text surrounding it.
var ErrComponentFormat = errors.New("pathfmt: path component does not match template format")

// FormatString is a compiled path template. It is immutable after parse;
// the zero value is not valid, use Parse or New.
type FormatString struct {
	src string
}

// New wraps a raw template source string. No validation is performed at
// construction time; all operations scan the source on demand.
func New(src string) *FormatString {
	return &FormatString{src: src}
}

// String returns the original template source.
func (f *FormatString) String() string {
	return f.src
}

type token struct {
	isVar bool
	text  string // literal text, or variable name (without leading $)
}

func isVarRune(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// tokenize walks s left-to-right emitting runs of non-$ characters as
// literals and runs of $ + ASCII alphanumerics as variable tokens.
func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		if s[i] == '$' {
			j := i + 1
			for j < len(s) && isVarRune(s[j]) {
				j++
			}
			if j > i+1 {
				toks = append(toks, token{isVar: true, text: s[i+1 : j]})
				i = j
				continue
			}
			// Lone "$" with no following alphanumeric: treat as literal.
		}
		j := i
		for j < len(s) && s[j] != '$' {
			j++
		}
		if j == i {
			// s[i] == '$' but not a variable start; consume the single rune.
			j = i + 1
		}
		toks = append(toks, token{isVar: false, text: s[i:j]})
		i = j
	}
	return toks
}

// Prefix returns the leading literal run of the template, up to the first
// $. It is never empty: a template that starts with a variable (or is
// entirely a single variable) defaults to "/".
func (f *FormatString) Prefix() string {
	idx := strings.IndexByte(f.src, '$')
	if idx < 0 {
		return f.src
	}
	if idx == 0 {
		return "/"
	}
	return f.src[:idx]
}

// Variables returns the distinct variable names referenced by the
// template, in first-occurrence order.
func (f *FormatString) Variables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range tokenize(f.src) {
		if !tok.isVar {
			continue
		}
		if seen[tok.text] {
			continue
		}
		seen[tok.text] = true
		out = append(out, tok.text)
	}
	return out
}

func splitComponents(s string) []string {
	return strings.Split(s, "/")
}

// trimTrailingEmpty drops a single trailing empty component, which results
// from a path or template ending in "/".
func trimTrailingEmpty(comps []string) []string {
	if len(comps) > 0 && comps[len(comps)-1] == "" {
		return comps[:len(comps)-1]
	}
	return comps
}

// Resolve extracts a variable map from a concrete path by zipping the
// template's components against the path's, right-to-left. Extra leading
// path components (when the template is shorter) are accepted — the
// template anchors to the tail of the path.
func (f *FormatString) Resolve(path string) (map[string]string, error) {
	tmplComps := splitComponents(f.src)
	pathComps := splitComponents(path)

	if strings.HasSuffix(f.src, "/") {
		tmplComps = trimTrailingEmpty(tmplComps)
	}
	if strings.HasSuffix(path, "/") {
		pathComps = trimTrailingEmpty(pathComps)
	}

	if len(tmplComps) > len(pathComps) {
		return nil, fmt.Errorf("pathfmt: resolve %q against %q: %w", f.src, path, ErrComponentMismatch)
	}

	offset := len(pathComps) - len(tmplComps)
	vars := make(map[string]string)

	for i, tc := range tmplComps {
		pc := pathComps[offset+i]
		if !strings.ContainsRune(tc, '$') {
			if tc != pc {
				return nil, fmt.Errorf("pathfmt: component %q != %q: %w", pc, tc, ErrComponentMismatch)
			}
			continue
		}
		if err := resolveComponent(tc, pc, vars); err != nil {
			return nil, fmt.Errorf("pathfmt: resolve component %q against %q: %w", tc, pc, err)
		}
	}

	return vars, nil
}

// resolveComponent walks the tokenized template component left-to-right
// against the remaining portion of the path component, consuming literal
// prefixes and assigning variable tokens the text up to the next literal.
func resolveComponent(tmplComp, pathComp string, vars map[string]string) error {
	toks := tokenize(tmplComp)
	remaining := pathComp

	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if !tok.isVar {
			if !strings.HasPrefix(remaining, tok.text) {
				return ErrComponentFormat
			}
			remaining = remaining[len(tok.text):]
			continue
		}

		// Variable token: consume up to the next literal token's text, or
		// the rest of the remaining string if this is the last token.
		if i+1 < len(toks) {
			next := toks[i+1]
			if next.isVar {
				// Two adjacent variables with no literal separator: the
				// first variable greedily consumes nothing and the next
				// token resolves against the same remaining text is
				// undefined by the grammar; treat the first as empty.
				vars[tok.text] = ""
				continue
			}
			idx := strings.Index(remaining, next.text)
			if idx < 0 {
				return ErrComponentFormat
			}
			vars[tok.text] = normalizeVar(remaining[:idx])
			remaining = remaining[idx:]
			continue
		}

		vars[tok.text] = normalizeVar(remaining)
		remaining = ""
	}

	return nil
}

// normalizeVar NFC-normalizes a value extracted from a path component so a
// save discovered on a filesystem using a different Unicode normalization
// form (notably HFS+'s decomposed NFD) produces the same variable value, and
// therefore the same remote filename, as the same save discovered elsewhere.
func normalizeVar(s string) string {
	return norm.NFC.String(s)
}

// Matches reports whether the path resolves successfully against the
// template.
func (f *FormatString) Matches(path string) bool {
	_, err := f.Resolve(path)
	return err == nil
}

// BuildWithVars substitutes $NAME-style tokens with entries from vars.
// Variables missing from the map pass through literally as their original
// "$NAME" text.
func (f *FormatString) BuildWithVars(vars map[string]string) string {
	var b strings.Builder
	for _, tok := range tokenize(f.src) {
		if !tok.isVar {
			b.WriteString(tok.text)
			continue
		}
		if v, ok := vars[tok.text]; ok {
			b.WriteString(v)
			continue
		}
		b.WriteByte('$')
		b.WriteString(tok.text)
	}
	return b.String()
}
