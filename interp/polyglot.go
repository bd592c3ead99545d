package interp

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/dispatch"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/polyglot"
	"github.com/naab-lang/naab/token"
	"github.com/naab-lang/naab/value"
)

// evalPolyglot snapshots the requested bindings out of the enclosing scope
// and hands the block to the polyglot registry (§4.3, §4.9).
func (in *Interpreter) evalPolyglot(x *ast.PolyglotExpr, e *env.Environment) (*value.Value, error) {
	bindings, err := in.snapshotBindings(x.Bindings, e, x.Pos())
	if err != nil {
		return nil, err
	}
	in.auditEvent("block_execute", x.Language, map[string]string{
		"file": x.Pos().File, "line": strconv.Itoa(x.Pos().Line),
	})
	req := polyglot.Request{Body: x.Body, Bindings: bindings, JSON: x.JSON, Timeout: in.opt.Config.PolyglotTimeout, Pos: x.Pos()}
	v, err := in.Poly.Execute(context.Background(), x.Language, req)
	if err != nil {
		return nil, err
	}
	in.GC.Register(v, in)
	return v, nil
}

// snapshotBindings captures the binding snapshot a block executes against
// (§4.10, glossary): lists/dicts deep-copied, structs shared, primitives
// copied — the foreign side must never observe later interpreter mutations
// of a list it was handed.
func (in *Interpreter) snapshotBindings(names []string, e *env.Environment, pos token.Pos) (map[string]*value.Value, error) {
	bindings := make(map[string]*value.Value, len(names))
	for _, name := range names {
		v, ok := e.Get(name)
		if !ok {
			return nil, undefinedNameError(e, name, pos)
		}
		bindings[name] = copyOnBind(v)
	}
	return bindings, nil
}

// polyglotVarDeclGroups scans a block's statements for maximal runs of two
// or more consecutive `let name = <<lang ...>>` declarations: these are the
// candidates the dependency analyzer partitions for parallel dispatch
// (§4.10).
func polyglotVarDeclGroups(stmts []ast.Stmt) [][]int {
	var groups [][]int
	var run []int
	flush := func() {
		if len(run) >= 2 {
			groups = append(groups, run)
		}
		run = nil
	}
	for i, s := range stmts {
		vd, ok := s.(*ast.VarDecl)
		if !ok || vd.Value == nil {
			flush()
			continue
		}
		if _, ok := vd.Value.(*ast.PolyglotExpr); !ok {
			flush()
			continue
		}
		run = append(run, i)
	}
	flush()
	return groups
}

// bodyIdents extracts every identifier-shaped word from a polyglot block
// body. The dependency analyzer treats any such word that names an earlier
// block's output as a dependency even when it is absent from the explicit
// bindings list — conservative per §4.10: "if in doubt about whether a name
// is captured, it is treated as a dependency."
func bodyIdents(body string) []string {
	seen := map[string]bool{}
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			word := cur.String()
			if !seen[word] {
				seen[word] = true
				out = append(out, word)
			}
			cur.Reset()
		}
	}
	for _, r := range body {
		if unicode.IsLetter(r) || r == '_' || (cur.Len() > 0 && unicode.IsDigit(r)) {
			cur.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// dispatchPolyglotGroup evaluates every `let name = <<lang ...>>` in idxs
// through the dependency analyzer and parallel dispatcher (§4.10): the run
// is partitioned into maximal independent groups, each group's bindings are
// snapshotted at launch time (so dependent groups observe earlier groups'
// committed results), and results are committed to e in source order.
func (in *Interpreter) dispatchPolyglotGroup(stmts []ast.Stmt, idxs []int, e *env.Environment) error {
	jobs := make([]dispatch.Job, len(idxs))
	for i, idx := range idxs {
		vd := stmts[idx].(*ast.VarDecl)
		pg := vd.Value.(*ast.PolyglotExpr)
		reads := append([]string{}, pg.Bindings...)
		reads = append(reads, bodyIdents(pg.Body)...)
		jobs[i] = dispatch.Job{ID: vd.Name, Lang: pg.Language, Reads: reads, Writes: vd.Name}
	}

	for _, group := range dispatch.AnalyzeGroups(jobs) {
		launch := make([]*dispatch.Job, len(group))
		for gi, ji := range group {
			vd := stmts[idxs[ji]].(*ast.VarDecl)
			pg := vd.Value.(*ast.PolyglotExpr)
			bindings, err := in.snapshotBindings(pg.Bindings, e, pg.Pos())
			if err != nil {
				return err
			}
			jobs[ji].Request = polyglot.Request{
				Body: pg.Body, Bindings: bindings, JSON: pg.JSON,
				Timeout: in.opt.Config.PolyglotTimeout, Pos: pg.Pos(),
			}
			launch[gi] = &jobs[ji]
			in.auditEvent("block_execute", pg.Language, map[string]string{
				"file": pg.Pos().File, "line": strconv.Itoa(pg.Pos().Line), "binding": vd.Name,
			})
		}
		results, err := in.Dispatch.RunGroup(context.Background(), launch, in.GC)
		if err != nil {
			return err
		}
		// Commit in source order: launch/results follow the group's own
		// textual ordering, so earlier blocks' bindings land first (§4.10).
		for gi, ji := range group {
			vd := stmts[idxs[ji]].(*ast.VarDecl)
			v := copyOnBind(results[gi])
			e.Define(vd.Name, v)
			in.GC.Register(v, in)
		}
	}
	return nil
}
