package query

import (
	"errors"
	"strings"

	"github.com/gojue/ecaptureQ/internal/packet"
)

// SubqueryAlias names the wrapped operator query.
const SubqueryAlias = "custom_view"

var (
	// ErrMultipleStatements rejects input that would smuggle a second statement.
	ErrMultipleStatements = errors.New("query: multiple statements are not allowed")
	// ErrUnbalanced rejects input whose parentheses or quotes do not close,
	// which could escape the wrapping.
	ErrUnbalanced = errors.New("query: unbalanced parentheses or quotes")
	// ErrOpenComment rejects a line comment running to the end of input; it
	// would swallow the closing parenthesis of the wrapping.
	ErrOpenComment = errors.New("query: unterminated line comment")
)

// IsFullQuery reports whether input is a complete SELECT rather than a bare
// predicate.
func IsFullQuery(input string) bool {
	s := strings.TrimSpace(input)
	return len(s) >= 6 && strings.EqualFold(s[:6], "select")
}

// Incremental builds the cursor-bounded query for input: either a full query
// wrapped as a subquery, or a bare predicate (empty means everything). The
// result always projects the summary columns, keeps index > cursor and
// orders by index.
func Incremental(cursor uint64, input string) (Select, error) {
	s := strings.TrimSpace(input)
	sel := Select{
		Projection:   SummaryProjection(),
		OrderByIndex: true,
	}
	if IsFullQuery(s) {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
		if err := checkFragment(s); err != nil {
			return Select{}, err
		}
		sel.From = Subquery{SQL: s, Alias: SubqueryAlias}
		sel.Where = IndexAfter{Cursor: cursor}
		return sel, nil
	}
	var pred Expr = Always{}
	if s != "" {
		if err := checkFragment(s); err != nil {
			return Select{}, err
		}
		pred = Raw(s)
	}
	sel.From = Relation(packet.TableName)
	sel.Where = And{Paren{pred}, IndexAfter{Cursor: cursor}}
	return sel, nil
}

// Build renders Incremental(cursor, input).
func Build(cursor uint64, input string) (string, error) {
	sel, err := Incremental(cursor, input)
	if err != nil {
		return "", err
	}
	return sel.String(), nil
}

// ByIndex selects the full row with the given index.
func ByIndex(index uint64) Select {
	return Select{
		Projection: FullProjection(),
		From:       Relation(packet.TableName),
		Where:      IndexIs{Index: index},
		Limit:      1,
	}
}

// checkFragment scans s outside of string literals, quoted identifiers and
// comments. It rejects statement separators and unbalanced parentheses.
func checkFragment(s string) error {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' || c == '"':
			end := closingQuote(s, i+1, c)
			if end < 0 {
				return ErrUnbalanced
			}
			i = end
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return ErrOpenComment
			}
			i += nl
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return ErrUnbalanced
			}
			i += end + 3
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return ErrUnbalanced
			}
		case c == ';':
			return ErrMultipleStatements
		}
	}
	if depth != 0 {
		return ErrUnbalanced
	}
	return nil
}

// closingQuote returns the index of the quote closing a literal opened before
// from, treating doubled quotes as escapes.
func closingQuote(s string, from int, q byte) int {
	for i := from; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}
