// Package sanitize repairs malformed JSON payloads produced by the
// generator before they reach the parser. Every repair is a fixed,
// ordered heuristic; the package never fails, it only degrades.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceLine = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

	// "key: value" with an unquoted key, directly after { , or [.
	unquotedKey = regexp.MustCompile(`([{,\[]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*):`)

	// String value containing a stray inner quote pair: : "a "b" c"
	strayQuotePair = regexp.MustCompile(`(:\s*)"([^"\n]*)"([^"\n]*)"([^"\n]*)"(\s*[,}\]])`)

	// String value containing a single stray inner quote: : "a "b"
	strayQuote = regexp.MustCompile(`(:\s*)"([^"\n]*)"([^"\n]*)"(\s*[,}\]])`)

	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

	// Bare word value: : Medium  ->  : "Medium". Starts with a letter so
	// numeric literals stay numeric; true/false/null are filtered below.
	bareScalar = regexp.MustCompile(`(:\s*)([A-Za-z_][^",{}\[\]\n]*?)(\s*[,}\]])`)
)

// Sanitize extracts and repairs the JSON-like payload inside text.
// The second return is false when no opening brace or bracket exists at
// all, which callers classify as a malformed payload.
//
// Bracket matching is positional: the payload runs from the first opener
// to the last occurrence of the complementary closer. A literal brace or
// bracket character inside a trailing string value can therefore truncate
// or extend the slice; this is an accepted limitation of the heuristic.
func Sanitize(text string) (string, bool) {
	candidate, ok := slicePayload(text)
	if !ok {
		return "", false
	}

	candidate = fenceLine.ReplaceAllString(candidate, "")
	candidate = strings.TrimSpace(candidate)

	// Already valid: leave it alone.
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}

	// Repairs run in fixed order; each is independent of the others.
	candidate = unquotedKey.ReplaceAllString(candidate, `${1}"${2}"${3}:`)
	candidate = strayQuotePair.ReplaceAllString(candidate, `${1}"${2}\"${3}\"${4}"${5}`)
	candidate = strayQuote.ReplaceAllString(candidate, `${1}"${2}\"${3}"${4}`)
	candidate = trailingComma.ReplaceAllString(candidate, `${1}`)
	candidate = quoteBareScalars(candidate)
	candidate = collapseStringNewlines(candidate)

	return candidate, true
}

// slicePayload finds the first opening bracket and the last occurrence of
// its complementary closer, returning the span between them.
func slicePayload(text string) (string, bool) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start, closer := objStart, byte('}')
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closer = arrStart, ']'
	}
	if start < 0 {
		return "", false
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// quoteBareScalars wraps unquoted word values in quotes, skipping the
// JSON literals true, false, and null.
func quoteBareScalars(s string) string {
	return bareScalar.ReplaceAllStringFunc(s, func(m string) string {
		sub := bareScalar.FindStringSubmatch(m)
		val := strings.TrimSpace(sub[2])
		switch val {
		case "true", "false", "null":
			return m
		}
		return sub[1] + `"` + val + `"` + sub[3]
	})
}

// collapseStringNewlines replaces raw newlines inside string literals with
// a single space. Iterating bytes is safe for ASCII delimiters: UTF-8
// guarantees they never appear inside a multi-byte sequence.
func collapseStringNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape {
			escape = false
			b.WriteByte(c)
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
				b.WriteByte(c)
			case '"':
				inString = false
				b.WriteByte(c)
			case '\n':
				b.WriteByte(' ')
			case '\r':
				// Dropped; the following \n (if any) becomes the space.
				if i+1 >= len(s) || s[i+1] != '\n' {
					b.WriteByte(' ')
				}
			default:
				b.WriteByte(c)
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}
