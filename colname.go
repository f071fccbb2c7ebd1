package rowbind

import "strings"

// DefaultSeparator joins a field name with the columns of its nested
// aggregate when no explicit prefix is declared.
const DefaultSeparator = "_"

// ColumnName flattens a field path into a column name: the prefixes of every
// ancestor aggregate field, in root-to-leaf order, concatenated in front of
// the leaf field name. Root-level scalar fields carry no prefix. The same
// rule drives construction (top-down) and deconstruction (bottom-up), which
// is what keeps the two engines symmetric.
func ColumnName(prefixes []string, leaf string) string {
	if len(prefixes) == 0 {
		return leaf
	}
	var b strings.Builder
	for _, p := range prefixes {
		b.WriteString(p)
	}
	b.WriteString(leaf)
	return b.String()
}

func defaultPrefix(name, sep string) string { return name + sep }

// ---------------- Column normalization (ASCII fast-path) ----------------

// normalizeColAscii strips one matching layer of SQL identifier quoting and
// lower-cases the result.
func normalizeColAscii(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				s = s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				s = s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				s = s[1 : l-1]
			}
		}
	}
	return toLowerAscii(s)
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
	}
	return string(b)
}
