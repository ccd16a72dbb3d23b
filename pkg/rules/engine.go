package rules

import (
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/YunHsiao/crysknife/pkg/errors"
	"github.com/YunHsiao/crysknife/pkg/logging"
)

const globalScope = 0

// scopeNode is one node of the scope arena. Parent indices let
// resolve walk leaf→root without any dynamic dispatch.
type scopeNode struct {
	prefix string // slash path, "" for the Global root
	parent int
	lines  []ruleLine
}

// Engine holds the parsed, immutable rule set for one invocation.
// Build it once, then pass it explicitly into every file-processing
// unit.
type Engine struct {
	nodes   []scopeNode
	index   map[string]int
	vars    map[string]string
	defines map[string]string
	logger  zerolog.Logger
}

// NewEngine parses the config text and validates every ${Name}
// reference against [Variables] and the supplied defines. Config
// errors are fatal here, before any file is processed.
func NewEngine(configText string, defines map[string]string) (*Engine, error) {
	e := &Engine{
		nodes:   []scopeNode{{prefix: "", parent: -1}},
		index:   map[string]int{"": globalScope},
		vars:    map[string]string{},
		defines: defines,
		logger:  logging.GetLogger("rules"),
	}
	if e.defines == nil {
		e.defines = map[string]string{}
	}
	if err := e.parseConfig(configText); err != nil {
		return nil, err
	}
	e.wireParents()
	if err := e.validateVariables(); err != nil {
		return nil, err
	}
	return e, nil
}

// scopeFor returns the node index for a path prefix, creating it on
// first use.
func (e *Engine) scopeFor(prefix string) int {
	if idx, ok := e.index[prefix]; ok {
		return idx
	}
	e.nodes = append(e.nodes, scopeNode{prefix: prefix, parent: globalScope})
	idx := len(e.nodes) - 1
	e.index[prefix] = idx
	return idx
}

// wireParents links every node to its nearest enclosing prefix.
func (e *Engine) wireParents() {
	for i := 1; i < len(e.nodes); i++ {
		best := globalScope
		bestLen := -1
		for j := 1; j < len(e.nodes); j++ {
			if i == j {
				continue
			}
			p := e.nodes[j].prefix
			if len(p) > bestLen && isPathPrefix(p, e.nodes[i].prefix) && p != e.nodes[i].prefix {
				best, bestLen = j, len(p)
			}
		}
		e.nodes[i].parent = best
	}
}

// isPathPrefix reports whether prefix encloses p on whole segments.
func isPathPrefix(prefix, p string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// chain returns the scope indices from the Global root down to the
// most specific scope containing target.
func (e *Engine) chain(target string) []int {
	deepest := globalScope
	deepestLen := -1
	for i := 1; i < len(e.nodes); i++ {
		p := e.nodes[i].prefix
		if isPathPrefix(p, target) && len(p) > deepestLen {
			deepest, deepestLen = i, len(p)
		}
	}

	var chain []int
	for i := deepest; i >= 0; i = e.nodes[i].parent {
		chain = append(chain, i)
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// resolveLines concatenates the chain's lines for one key, outer
// rules first. An assignment replaces accumulated ordinary lines;
// ^BaseDomain lines survive unless the assignment is ^BaseDomain
// itself; +Key= always appends.
func (e *Engine) resolveLines(chain []int, key RuleKey) []ruleLine {
	var acc []ruleLine
	for _, idx := range chain {
		for _, l := range e.nodes[idx].lines {
			if l.key != key {
				continue
			}
			if l.plus {
				acc = append(acc, l)
				continue
			}
			if l.baseDomain {
				acc = acc[:0]
			} else {
				kept := make([]ruleLine, 0, len(acc))
				for _, old := range acc {
					if old.baseDomain {
						kept = append(kept, old)
					}
				}
				acc = kept
			}
			acc = append(acc, l)
		}
	}
	return acc
}

// substitute resolves ${Name} tokens on demand, so variables declared
// later in the file still resolve when referenced earlier.
func (e *Engine) substitute(s string) (string, error) {
	for depth := 0; depth < 16; depth++ {
		start := strings.Index(s, "${")
		if start < 0 {
			return s, nil
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return "", errors.Newf(errors.ErrConfigParse, "unterminated variable reference in %q", s)
		}
		name := s[start+2 : start+end]
		value, ok := e.vars[name]
		if !ok {
			value, ok = e.defines[name]
		}
		if !ok {
			return "", errors.Newf(errors.ErrVariableUndefined, "variable %q is not defined", name)
		}
		s = s[:start] + value + s[start+end+1:]
	}
	return "", errors.Newf(errors.ErrConfigParse, "variable substitution too deep in %q", s)
}

// validateVariables checks every ${Name} reference in the tree so an
// undefined variable fails the run before any file work starts.
func (e *Engine) validateVariables() error {
	check := func(s string) error {
		_, err := e.substitute(s)
		return err
	}
	for _, v := range e.vars {
		if err := check(v); err != nil {
			return err
		}
	}
	for _, node := range e.nodes {
		for _, l := range node.lines {
			if err := check(l.target); err != nil {
				return err
			}
			for _, p := range l.preds {
				for _, op := range p.Operands {
					if err := check(op.Text); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Evaluate resolves the action set for one target path. Skip has the
// highest precedence; Remap and Flatten apply independently.
func (e *Engine) Evaluate(target string, facts Facts) (Decision, error) {
	target = strings.Trim(path.Clean(filepathToSlash(target)), "/")
	if facts.FileName == "" {
		facts.FileName = path.Base(target)
	}

	chain := e.chain(target)
	d := Decision{Path: target}

	skip, err := e.evalKey(chain, SkipIf, facts)
	if err != nil {
		return d, err
	}
	if skip {
		d.Skip = true
		e.logger.Debug().Str("target", target).Msg("Skipped by rule")
		return d, nil
	}

	remap, err := e.evalKey(chain, RemapIf, facts)
	if err != nil {
		return d, err
	}
	flatten, err := e.evalKey(chain, FlattenIf, facts)
	if err != nil {
		return d, err
	}

	prefix := ""
	if remap {
		lines := e.resolveLines(chain, RemapTarget)
		if len(lines) == 0 {
			e.logger.Warn().Str("target", target).Msg("RemapIf fired without a RemapTarget")
		} else {
			l := lines[len(lines)-1]
			mapped, err := e.substitute(l.target)
			if err != nil {
				return d, err
			}
			prefix = strings.Trim(mapped, "/")
			scopePrefix := e.nodes[l.scope].prefix
			rest := strings.TrimPrefix(strings.TrimPrefix(target, scopePrefix), "/")
			d.Path = path.Join(prefix, rest)
			d.Remapped = true
		}
	}

	if flatten {
		if !d.Remapped {
			prefix = e.flattenPrefix(chain)
		}
		d.Path = path.Join(prefix, path.Base(target))
		d.Flattened = true
	}

	return d, nil
}

// flattenPrefix is the prefix of the most specific scope that
// contributed a FlattenIf line.
func (e *Engine) flattenPrefix(chain []int) string {
	prefix := ""
	for _, idx := range chain { // root→leaf, last hit wins
		for _, l := range e.nodes[idx].lines {
			if l.key == FlattenIf {
				prefix = e.nodes[idx].prefix
			}
		}
	}
	return prefix
}

// evalKey evaluates all resolved predicate lines for one rule key.
// Operand lists combine by OR unless a Conjunctions directive names
// the predicate kind (or Predicates/All); predicate results combine
// by OR unless Conjunctions names Root (or All).
func (e *Engine) evalKey(chain []int, key RuleKey, facts Facts) (bool, error) {
	lines := e.resolveLines(chain, key)
	if len(lines) == 0 {
		return false, nil
	}

	conj := map[string]bool{}
	for _, l := range lines {
		for _, p := range l.preds {
			if p.Kind != Conjunctions {
				continue
			}
			for _, op := range p.Operands {
				conj[op.Text] = true
			}
		}
	}
	all := conj["All"]
	predAnd := all || conj["Root"]

	var results []bool
	for _, l := range lines {
		for _, p := range l.preds {
			if p.Kind == Conjunctions {
				continue
			}
			opAnd := all || conj["Predicates"] || conj[p.Kind.String()]
			r, err := e.evalPredicate(p, opAnd, facts)
			if err != nil {
				return false, err
			}
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		return false, nil
	}
	return combine(results, predAnd), nil
}

// evalPredicate evaluates one predicate's operand list.
func (e *Engine) evalPredicate(p Predicate, and bool, facts Facts) (bool, error) {
	switch p.Kind {
	case Always:
		return true, nil
	case Never:
		return false, nil
	}

	var results []bool
	for _, op := range p.Operands {
		text, err := e.substitute(op.Text)
		if err != nil {
			return false, err
		}

		var r bool
		switch p.Kind {
		case TargetExists:
			r = facts.TargetExists != nil && facts.TargetExists(text)
		case IsTruthy:
			if v, ok := e.defines[text]; ok {
				text = v
			} else if v, ok := facts.Defines[text]; ok {
				text = v
			}
			r = isTruthy(text)
		case NameMatches:
			r, _ = path.Match(text, facts.FileName)
		}
		if op.Negate {
			r = !r
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return false, nil
	}
	return combine(results, and), nil
}

func combine(results []bool, and bool) bool {
	if and {
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func filepathToSlash(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}
