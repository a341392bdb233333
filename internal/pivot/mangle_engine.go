package pivot

import (
	"fmt"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// gapFactsEngine is a minimal embedded Datalog engine asserting one gap(...)
// fact per parsed/explicit gap and re-evaluating the small derivation
// program below on each assertion, in the AddFact/Query shape the pack's
// Mangle integration boilerplate uses, rather than the heavier declared-
// schema RealKernel apparatus.
type gapFactsEngine struct {
	store       factstore.FactStore
	programInfo *analysis.ProgramInfo
}

// gapDerivationProgram declares gap/3 (gap_id, priority name, tag name) and
// derives by_priority/2 so callers can query "which gap_ids have priority
// /P0" etc. through the store rather than hand-filtering structs.
const gapDerivationProgram = `
	Decl gap(GapId.Type<n>, Priority.Type<n>, Tag.Type<n>).
	Decl by_priority(GapId.Type<n>, Priority.Type<n>).

	by_priority(G, P) :- gap(G, P, _).
`

func newGapFactsEngine() (*gapFactsEngine, error) {
	unit, err := parse.Unit(strings.NewReader(gapDerivationProgram))
	if err != nil {
		return nil, fmt.Errorf("pivot: mangle parse error: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("pivot: mangle analysis error: %w", err)
	}
	store := factstore.NewSimpleInMemoryStore()
	if _, err := engine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, fmt.Errorf("pivot: mangle eval error: %w", err)
	}
	return &gapFactsEngine{store: store, programInfo: programInfo}, nil
}

func (e *gapFactsEngine) assertGap(gapID, priority string, tags []string) error {
	tag := "/none"
	if len(tags) > 0 {
		tag = "/" + tags[0]
	}
	atom := ast.NewAtom("gap", ast.Name("/"+gapID), ast.Name("/"+priority), ast.Name(tag))
	e.store.Add(atom)
	_, err := engine.EvalProgramWithStats(e.programInfo, e.store)
	return err
}

// gapIDsWithPriority returns the gap_ids asserted under the given priority
// name (e.g. "P0"), queried back out of the fact store.
func (e *gapFactsEngine) gapIDsWithPriority(priority string) ([]string, error) {
	pred := ast.PredicateSym{Symbol: "by_priority", Arity: 2}
	query := ast.NewQuery(pred)

	var gapIDs []string
	err := e.store.GetFacts(query, func(a ast.Atom) error {
		if len(a.Args) != 2 {
			return nil
		}
		gotPriority := termToName(a.Args[1])
		if gotPriority != priority {
			return nil
		}
		gapIDs = append(gapIDs, termToName(a.Args[0]))
		return nil
	})
	return gapIDs, err
}

func termToName(term ast.BaseTerm) string {
	c, ok := term.(ast.Constant)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(c.Symbol, "/")
}
