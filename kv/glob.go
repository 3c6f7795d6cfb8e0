package kv

import "strings"

// globToSQL converts a shell-glob key pattern to a SQL predicate argument.
//
// Patterns containing a bracket expression compile to an anchored POSIX
// regex (regex=true), because bracket-class semantics have no LIKE
// equivalent. Everything else compiles to a LIKE pattern with %, _ and \
// escaped. The caller picks the matching operator for its dialect.
func globToSQL(pattern string) (string, bool) {
	if strings.Contains(pattern, "[") {
		return globToRegex(pattern), true
	}
	return globToLike(pattern), false
}

// globToRegex translates * and ? to their regex forms, passes bracket
// expressions through literally, and escapes every other regex
// metacharacter. The result is anchored at both ends.
func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '*':
			b.WriteString(".*")
		case c == '?':
			b.WriteByte('.')
		case c == '[':
			if j := strings.IndexByte(pattern[i+1:], ']'); j >= 0 {
				b.WriteString(pattern[i : i+j+2])
				i += j + 1
			} else {
				b.WriteString(`\[`)
			}
		case strings.IndexByte(`\.+^$(){}|`, c) >= 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('$')
	return b.String()
}

// globToLike escapes literal %, _ and backslash, then maps * to % and ? to _.
func globToLike(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '%':
			b.WriteString(`\%`)
		case '_':
			b.WriteString(`\_`)
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
