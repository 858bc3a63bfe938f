package datasource

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Validation errors returned by ValidateReadOnly.
var (
	ErrEmptyQuery         = errors.New("query is empty")
	ErrMultipleStatements = errors.New("query must be a single statement")
	ErrNotSelect          = errors.New("query must start with SELECT or WITH")
	ErrForbiddenKeyword   = errors.New("query contains a forbidden keyword")
)

// forbiddenKeywords are statement verbs and constructs that modify data,
// execute code, or reach outside the database. INTO is listed to block
// SELECT INTO.
var forbiddenKeywords = map[string]bool{
	"INSERT":         true,
	"UPDATE":         true,
	"DELETE":         true,
	"MERGE":          true,
	"DROP":           true,
	"CREATE":         true,
	"ALTER":          true,
	"TRUNCATE":       true,
	"EXEC":           true,
	"EXECUTE":        true,
	"GRANT":          true,
	"REVOKE":         true,
	"DENY":           true,
	"BACKUP":         true,
	"RESTORE":        true,
	"KILL":           true,
	"SHUTDOWN":       true,
	"DBCC":           true,
	"OPENROWSET":     true,
	"OPENQUERY":      true,
	"OPENDATASOURCE": true,
	"BULK":           true,
	"WRITETEXT":      true,
	"UPDATETEXT":     true,
	"INTO":           true,
}

// ValidateReadOnly checks that query is a single read-only T-SQL statement.
// The model writes these queries, so the check assumes nothing about their
// shape: keywords are matched outside string literals, quoted identifiers
// and comments, and anything that could write, execute or batch further
// statements is rejected. Column names that collide with a forbidden
// keyword must be bracket-quoted.
func ValidateReadOnly(query string) error {
	tokens, err := scanTokens(query)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return ErrEmptyQuery
	}

	first := strings.ToUpper(tokens[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("%w, got %q", ErrNotSelect, tokens[0])
	}

	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		if forbiddenKeywords[upper] {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, upper)
		}
		if strings.HasPrefix(upper, "SP_") || strings.HasPrefix(upper, "XP_") {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, tok)
		}
	}
	return nil
}

// scanTokens walks the statement and returns its word tokens, skipping
// string literals, [bracketed] and "quoted" identifiers, line comments and
// (nested) block comments. Any significant content after a semicolon means
// a second statement.
func scanTokens(query string) ([]string, error) {
	var tokens []string
	runes := []rune(query)
	afterSemi := false

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			// T-SQL block comments nest
			depth := 1
			i += 2
			for i < len(runes) && depth > 0 {
				switch {
				case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '*':
					depth++
					i += 2
				case runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/':
					depth--
					i += 2
				default:
					i++
				}
			}

		case r == '\'':
			if afterSemi {
				return nil, ErrMultipleStatements
			}
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					// '' escapes a quote inside the literal
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}

		case r == '[':
			if afterSemi {
				return nil, ErrMultipleStatements
			}
			i++
			for i < len(runes) {
				if runes[i] == ']' {
					if i+1 < len(runes) && runes[i+1] == ']' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}

		case r == '"':
			if afterSemi {
				return nil, ErrMultipleStatements
			}
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			if i < len(runes) {
				i++
			}

		case r == ';':
			afterSemi = true
			i++

		case isWordStart(r):
			if afterSemi {
				return nil, ErrMultipleStatements
			}
			start := i
			for i < len(runes) && isWordChar(runes[i]) {
				i++
			}
			tokens = append(tokens, string(runes[start:i]))

		default:
			if afterSemi {
				return nil, ErrMultipleStatements
			}
			i++
		}
	}
	return tokens, nil
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '#' || r == '@'
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '#' || r == '@' || r == '$'
}
