package diaglog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL expression over diagnostic entries. The zero
// Filter matches everything.
//
// Variables: kind, seq, ts_ms, count, level, message, text. count is the
// heartbeat counter; level and message come from process logs; text is the
// heartbeat message or the raw log line.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// CompileFilter compiles a boolean CEL expression over the entry variables.
// An empty expression matches everything.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("seq", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("count", cel.IntType),
		cel.Variable("level", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("text", cel.StringType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("diaglog: filter: %w", iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return Filter{}, fmt.Errorf("diaglog: filter must be boolean, got %v", t)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter. Evaluation errors count as no match.
func (f Filter) Match(e Entry) bool {
	if !f.enabled {
		return true
	}
	vars := map[string]any{
		"kind":    string(e.Kind),
		"seq":     int64(e.Seq),
		"ts_ms":   e.TimeMs,
		"count":   int64(0),
		"level":   "",
		"message": "",
		"text":    "",
	}
	if hb := e.Heartbeat; hb != nil {
		vars["count"] = int64(hb.Count)
		vars["message"] = hb.Message
		vars["text"] = hb.Message
	}
	if pl := e.Log; pl != nil {
		vars["level"] = pl.Level
		vars["message"] = pl.Message
		vars["text"] = pl.LogInfo
	}
	out, _, err := f.prog.Eval(vars)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// SearchOptions combines a page request with a CEL filter.
type SearchOptions struct {
	Filter  string
	Start   uint64
	Limit   int
	Reverse bool
}

// Search scans from Start and returns up to Limit entries matching the
// filter, plus the sequence to continue from.
func (l *Log) Search(ctx context.Context, opts SearchOptions) ([]Entry, uint64, error) {
	f, err := CompileFilter(opts.Filter)
	if err != nil {
		return nil, 0, err
	}
	var out []Entry
	next := l.scan(ReadOptions{Start: opts.Start, Reverse: opts.Reverse}, func(e Entry) bool {
		if ctx.Err() != nil {
			return false
		}
		if f.Match(e) {
			out = append(out, e)
		}
		return opts.Limit <= 0 || len(out) < opts.Limit
	})
	if err := ctx.Err(); err != nil {
		return out, next, err
	}
	return out, next, nil
}
