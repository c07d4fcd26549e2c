package query

import (
	"strconv"
	"strings"

	"github.com/gojue/ecaptureQ/internal/packet"
)

// Projection is one of the fixed column lists. It cannot be built from
// arbitrary columns outside this package, so every rendered query has a
// known output shape.
type Projection struct {
	cols []string
}

// SummaryProjection selects every column except the payloads.
func SummaryProjection() Projection { return Projection{cols: packet.SummaryColumns} }

// FullProjection selects every column including the payloads.
func FullProjection() Projection { return Projection{cols: packet.AllColumns} }

func (p Projection) Columns() []string { return append([]string(nil), p.cols...) }

// Source is the FROM clause of a Select.
type Source interface {
	writeSource(b *strings.Builder)
}

// Relation names a table.
type Relation string

func (r Relation) writeSource(b *strings.Builder) { writeIdent(b, string(r)) }

// Subquery embeds operator-supplied query text under an alias.
type Subquery struct {
	SQL   string
	Alias string
}

func (s Subquery) writeSource(b *strings.Builder) {
	b.WriteString("(")
	b.WriteString(s.SQL)
	b.WriteString(") AS ")
	writeIdent(b, s.Alias)
}

// Expr is a boolean expression in a WHERE clause.
type Expr interface {
	writeExpr(b *strings.Builder)
}

// Raw is operator-supplied predicate text, rendered verbatim.
type Raw string

func (r Raw) writeExpr(b *strings.Builder) { b.WriteString(string(r)) }

// Always is the always-true predicate.
type Always struct{}

func (Always) writeExpr(b *strings.Builder) { b.WriteString("1=1") }

// Paren wraps X in parentheses.
type Paren struct{ X Expr }

func (p Paren) writeExpr(b *strings.Builder) {
	b.WriteString("(")
	p.X.writeExpr(b)
	b.WriteString(")")
}

// And joins its terms with AND.
type And []Expr

func (a And) writeExpr(b *strings.Builder) {
	for i, e := range a {
		if i > 0 {
			b.WriteString(" AND ")
		}
		e.writeExpr(b)
	}
}

// Beginning is the cursor of a consumer that has received nothing yet.
// Unlike cursor 0 it does not exclude row 0.
const Beginning = ^uint64(0)

// IndexAfter is the cursor filter: index > Cursor, or every row when Cursor
// is Beginning.
type IndexAfter struct{ Cursor uint64 }

func (c IndexAfter) writeExpr(b *strings.Builder) {
	writeIdent(b, packet.ColIndex)
	if c.Cursor == Beginning {
		b.WriteString(" >= 0")
		return
	}
	b.WriteString(" > ")
	b.WriteString(strconv.FormatUint(c.Cursor, 10))
}

// IndexIs matches exactly one row index.
type IndexIs struct{ Index uint64 }

func (c IndexIs) writeExpr(b *strings.Builder) {
	writeIdent(b, packet.ColIndex)
	b.WriteString(" = ")
	b.WriteString(strconv.FormatUint(c.Index, 10))
}

// Select is a rendered-on-demand SELECT statement.
type Select struct {
	Projection Projection
	From       Source
	Where      Expr
	// OrderByIndex sorts ascending by index when set.
	OrderByIndex bool
	Limit        int
}

// String renders the statement in DuckDB's dialect.
func (s Select) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range s.Projection.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		writeIdent(&b, c)
	}
	b.WriteString(" FROM ")
	s.From.writeSource(&b)
	if s.Where != nil {
		b.WriteString(" WHERE ")
		s.Where.writeExpr(&b)
	}
	if s.OrderByIndex {
		b.WriteString(" ORDER BY ")
		writeIdent(&b, packet.ColIndex)
		b.WriteString(" ASC")
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Limit))
	}
	return b.String()
}

func writeIdent(b *strings.Builder, name string) {
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(name, `"`, `""`))
	b.WriteByte('"')
}
