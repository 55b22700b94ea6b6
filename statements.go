package sqlcycle

import "strings"

// SplitStatements splits a statement group on ';'.
// Semicolons inside quoted strings, quoted identifiers, dollar-quoted bodies
// and comments do not split. Empty pieces are dropped and pieces are trimmed.
func SplitStatements(text string) []string {
	var (
		result []string
		start  int
	)

	emit := func(end int) {
		piece := strings.TrimSpace(text[start:end])
		if piece != "" && !isCommentOnly(piece) {
			result = append(result, piece)
		}
	}

	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '\'', '"':
			i = skipQuoted(text, i, c, c == '\'' && isEscapeString(text, i))
		case '-':
			if i+1 < len(text) && text[i+1] == '-' {
				if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
					i += nl
				} else {
					i = len(text)
				}
			}
		case '/':
			if i+1 < len(text) && text[i+1] == '*' {
				if end := strings.Index(text[i+2:], "*/"); end >= 0 {
					i += end + 3
				} else {
					i = len(text)
				}
			}
		case '$':
			if tag, ok := dollarTag(text[i:]); ok {
				if end := strings.Index(text[i+len(tag):], tag); end >= 0 {
					i += len(tag) + end + len(tag) - 1
				} else {
					i = len(text)
				}
			}
		case ';':
			emit(i)
			start = i + 1
		}
	}

	if start < len(text) {
		emit(len(text))
	}

	return result
}

// skipQuoted returns the index of the closing quote. A doubled quote is an
// escaped quote character; with backslash set, \x escapes x as well.
func skipQuoted(text string, i int, quote byte, backslash bool) int {
	for j := i + 1; j < len(text); j++ {
		if backslash && text[j] == '\\' {
			j++
			continue
		}

		if text[j] != quote {
			continue
		}

		if j+1 < len(text) && text[j+1] == quote {
			j++
			continue
		}

		return j
	}

	return len(text)
}

// isEscapeString reports whether the quote at i opens an E'...' literal
func isEscapeString(text string, i int) bool {
	if i == 0 || text[i-1] != 'E' && text[i-1] != 'e' {
		return false
	}

	return i == 1 || !isIdentByte(text[i-2])
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// dollarTag recognizes $$ or $tag$ at the start of s
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1], true
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && j > 1:
		default:
			return "", false
		}
	}

	return "", false
}

func isCommentOnly(piece string) bool {
	for _, line := range strings.Split(piece, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}

	return true
}
