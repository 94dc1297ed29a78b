package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Mode selects how a relaxed detection payload is turned into JSON.
type Mode string

const (
	// ModeLegacy blindly replaces every ' with " and every None with null.
	// Apostrophes or the word None inside string values corrupt the result.
	ModeLegacy Mode = "legacy"
	// ModeTolerant rewrites Python-literal syntax token by token, leaving the
	// contents of strings intact.
	ModeTolerant Mode = "tolerant"
)

var (
	// ErrEmptyPayload is returned for a blank inference string.
	ErrEmptyPayload = errors.New("empty inference payload")
	// ErrTrailingData is returned when content follows the decoded value.
	ErrTrailingData = errors.New("trailing data after inference results")
)

var (
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// DecodeRelaxed converts raw into JSON according to mode and decodes it.
// Numbers are kept as json.Number.
func DecodeRelaxed(raw string, mode Mode) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyPayload
	}
	var fixed string
	switch mode {
	case ModeLegacy:
		fixed = strings.ReplaceAll(raw, "'", `"`)
		fixed = strings.ReplaceAll(fixed, "None", "null")
	default:
		var err error
		fixed, err = rewriteLiterals(stripWrapping(raw))
		if err != nil {
			return nil, err
		}
		fixed = reTrailingComma.ReplaceAllString(fixed, "$1")
	}

	dec := json.NewDecoder(strings.NewReader(fixed))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse inference results: %w", err)
	}
	// the whole input must be one value
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to parse inference results: %w", ErrTrailingData)
	}
	return doc, nil
}

// stripWrapping removes code fences, block comments and surrounding prose
// that model backends tend to wrap around structured replies.
func stripWrapping(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(reBlockComment.ReplaceAllString(raw, ""))
	// keep only the outermost {...} when prose surrounds it
	if !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[") {
		if start := strings.Index(raw, "{"); start >= 0 {
			if end := strings.LastIndex(raw, "}"); end > start {
				raw = raw[start : end+1]
			}
		}
	}
	return raw
}

// rewriteLiterals turns a Python literal (dict/list repr) into JSON.
// Single-quoted strings become double-quoted with embedded quotes escaped;
// bare None/True/False outside strings become null/true/false.
func rewriteLiterals(src string) (string, error) {
	var out bytes.Buffer
	out.Grow(len(src))
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			n, err := copyString(&out, src[i:])
			if err != nil {
				return "", fmt.Errorf("offset %d: %w", i, err)
			}
			i += n
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			switch word := src[i:j]; word {
			case "None":
				out.WriteString("null")
			case "True":
				out.WriteString("true")
			case "False":
				out.WriteString("false")
			default:
				out.WriteString(word)
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

// copyString writes the quoted string at the start of s as a JSON string and
// returns the number of bytes consumed.
func copyString(out *bytes.Buffer, s string) (int, error) {
	quote := s[0]
	out.WriteByte('"')
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == '\'' {
				// \' is not a JSON escape
				out.WriteByte('\'')
			} else {
				out.WriteByte('\\')
				out.WriteByte(next)
			}
			i++
		case c == quote:
			out.WriteByte('"')
			return i + 1, nil
		case c == '"':
			out.WriteString(`\"`)
		default:
			out.WriteByte(c)
		}
	}
	return 0, errors.New("unterminated string")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
