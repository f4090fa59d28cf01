package filter

import (
	"strings"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

// translateLikePattern rewrites a LIKE pattern into the engine's wildcard
// syntax. The grammar's multi-char wildcard '%' becomes '*', the single-char
// wildcard '_' becomes '?', and '\' escapes the following character so that
// a literal '%', '_' or '\' survives translation. Characters that are
// wildcards in the engine syntax ('*', '?', '\') are escaped on the way out.
//
// A trailing bare backslash is malformed.
func translateLikePattern(pattern string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(pattern))

	escaped := false
	for _, r := range pattern {
		if escaped {
			switch r {
			case '%', '_':
				sb.WriteRune(r)
			case '\\':
				sb.WriteString(`\\`)
			default:
				// The escape applies to the grammar's metacharacters only;
				// anything else keeps the backslash meaningless and literal.
				sb.WriteRune(r)
			}
			escaped = false
			continue
		}

		switch r {
		case '\\':
			escaped = true
		case '%':
			sb.WriteByte('*')
		case '_':
			sb.WriteByte('?')
		case '*', '?':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}

	if escaped {
		return "", errors.New(errors.ErrCodeInvalidFilter, "pattern ends with a dangling escape character").
			WithDetail(pattern)
	}
	return sb.String(), nil
}
