// Package query composes the cursor-bounded SQL sent to the packets table.
//
// Queries are built as a small typed AST (Select, Projection, Source, Expr)
// and rendered last. The projection is always one of two fixed column lists,
// the cursor filter always applies to the outermost query and rows are
// always ordered by index, whatever the operator typed.
//
// Operator input comes in two modes. Text starting with SELECT is wrapped as
// a subquery:
//
//	SELECT <summary cols> FROM (<input>) AS "custom_view" WHERE "index" > N ORDER BY "index" ASC
//
// Anything else is a predicate (empty means all rows):
//
//	SELECT <summary cols> FROM "packets" WHERE (<input>) AND "index" > N ORDER BY "index" ASC
//
// The operator is trusted. Input is not escaped, but fragments containing a
// statement separator, unbalanced parentheses or quotes, or a trailing line
// comment are rejected because they could break out of the wrapping.
package query
