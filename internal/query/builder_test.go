package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryCols = `"index", "timestamp", "uuid", "src_ip", "src_port", "dst_ip", "dst_port", "pid", "pname", "type", "length", "is_binary"`

func TestBuildPredicate(t *testing.T) {
	got, err := Build(4, "  pname = 'curl' ")
	require.NoError(t, err)
	assert.Equal(t, `SELECT `+summaryCols+` FROM "packets" WHERE (pname = 'curl') AND "index" > 4 ORDER BY "index" ASC`, got)
}

func TestBuildEmptyPredicate(t *testing.T) {
	got, err := Build(0, "   ")
	require.NoError(t, err)
	assert.Equal(t, `SELECT `+summaryCols+` FROM "packets" WHERE (1=1) AND "index" > 0 ORDER BY "index" ASC`, got)
}

func TestBuildFullQuery(t *testing.T) {
	got, err := Build(9, "SELECT * FROM packets WHERE dst_port = 443;  ")
	require.NoError(t, err)
	assert.Equal(t, `SELECT `+summaryCols+` FROM (SELECT * FROM packets WHERE dst_port = 443) AS "custom_view" WHERE "index" > 9 ORDER BY "index" ASC`, got)
}

func TestWrappingEquivalence(t *testing.T) {
	a, err := Incremental(0, "SELECT * FROM packets")
	require.NoError(t, err)
	b, err := Incremental(0, "select * from packets ")
	require.NoError(t, err)

	assert.Equal(t, a.Projection, b.Projection)
	assert.Equal(t, a.Where, b.Where)
	assert.Equal(t, a.OrderByIndex, b.OrderByIndex)
	sa, sb := a.From.(Subquery), b.From.(Subquery)
	assert.Equal(t, sa.Alias, sb.Alias)
	assert.NotEqual(t, sa.SQL, sb.SQL)

	// outer text differs only inside the subquery parentheses
	ra, rb := a.String(), b.String()
	assert.Equal(t, strings.Replace(ra, sa.SQL, "<q>", 1), strings.Replace(rb, sb.SQL, "<q>", 1))
}

func TestIsFullQuery(t *testing.T) {
	assert.True(t, IsFullQuery("  SeLeCt 1"))
	assert.False(t, IsFullQuery("pname = 'select'"))
	assert.False(t, IsFullQuery(""))
	assert.False(t, IsFullQuery("sel"))
}

func TestByIndex(t *testing.T) {
	got := ByIndex(1).String()
	assert.Equal(t, `SELECT `+summaryCols+`, "payload_utf8", "payload_binary" FROM "packets" WHERE "index" = 1 LIMIT 1`, got)
}

func TestRejectsEscapes(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"1=1; DROP TABLE packets", ErrMultipleStatements},
		{"SELECT 1; SELECT 2;", ErrMultipleStatements},
		{"1=1) OR (1=1", ErrUnbalanced},
		{"SELECT * FROM (packets", ErrUnbalanced},
		{"pname = 'curl", ErrUnbalanced},
		{"pname = 'curl' -- tail", ErrOpenComment},
		{"pname = 'x' /* open", ErrUnbalanced},
	}
	for _, tc := range cases {
		_, err := Build(0, tc.in)
		assert.ErrorIs(t, err, tc.want, "input %q", tc.in)
	}
}

func TestAllowsQuotedSeparators(t *testing.T) {
	cases := []string{
		"pname = 'a;b'",
		`payload_utf8 LIKE '%it''s (%'`,
		"\"type\" = 1 /* ; ) */",
		"pname = 'x' -- note\n AND pid > 0",
		"SELECT * FROM packets WHERE pname IN ('a', 'b');",
	}
	for _, in := range cases {
		_, err := Build(0, in)
		assert.NoError(t, err, "input %q", in)
	}
}

func TestBeginningIncludesRowZero(t *testing.T) {
	q, err := Build(Beginning, "pname = 'curl'")
	require.NoError(t, err)
	assert.Contains(t, q, `"index" >= 0`)
	assert.NotContains(t, q, "18446744073709551615")
}
