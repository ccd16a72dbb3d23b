package rules

import (
	"strings"

	"github.com/YunHsiao/crysknife/pkg/errors"
)

const baseDomainPrefix = "^BaseDomain"

// parseConfig consumes the ini-style config text and populates the
// engine's variables and scope arena. Any malformed line is fatal:
// rules are a precondition for all file processing.
func (e *Engine) parseConfig(text string) error {
	const (
		sectionNone = iota
		sectionVariables
		sectionScope
	)
	section := sectionNone
	scopes := []int{} // scope nodes the current section feeds

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return errors.Newf(errors.ErrConfigParse, "unterminated section header at line %d", i+1)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			switch {
			case name == "":
				return errors.Newf(errors.ErrConfigParse, "empty section header at line %d", i+1)
			case strings.EqualFold(name, "Variables"):
				section = sectionVariables
			case strings.EqualFold(name, "Global"):
				section = sectionScope
				scopes = []int{globalScope}
			default:
				section = sectionScope
				scopes = scopes[:0]
				for _, prefix := range strings.Split(name, "|") {
					prefix = strings.Trim(strings.TrimSpace(prefix), "/")
					if prefix == "" {
						return errors.Newf(errors.ErrConfigParse, "empty scope path at line %d", i+1)
					}
					scopes = append(scopes, e.scopeFor(prefix))
				}
			}
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return errors.Newf(errors.ErrConfigParse, "expected Key=Value at line %d", i+1)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		switch section {
		case sectionVariables:
			if key == "" {
				return errors.Newf(errors.ErrConfigParse, "empty variable name at line %d", i+1)
			}
			e.vars[key] = value

		case sectionScope:
			if err := e.parseRuleLine(scopes, key, value, i+1); err != nil {
				return err
			}

		default:
			return errors.Newf(errors.ErrConfigParse, "directive outside any section at line %d", i+1)
		}
	}
	return nil
}

// parseRuleLine parses one Key=Value directive into every scope of
// the current section.
func (e *Engine) parseRuleLine(scopes []int, key, value string, lineNo int) error {
	plus := strings.HasPrefix(key, "+")
	key = strings.TrimPrefix(key, "+")

	ruleKey, ok := ruleKeyNames[key]
	if !ok {
		return errors.Newf(errors.ErrConfigParse, "unknown rule key %q at line %d", key, lineNo)
	}

	baseDomain := false
	if strings.HasPrefix(value, baseDomainPrefix) {
		rest := value[len(baseDomainPrefix):]
		if rest != "" && !strings.HasPrefix(rest, " ") {
			return errors.Newf(errors.ErrConfigParse, "malformed %s prefix at line %d", baseDomainPrefix, lineNo)
		}
		baseDomain = true
		value = strings.TrimSpace(rest)
	}

	for _, scope := range scopes {
		rl := ruleLine{key: ruleKey, plus: plus, baseDomain: baseDomain, scope: scope}
		if ruleKey == RemapTarget {
			if value == "" {
				return errors.Newf(errors.ErrConfigParse, "empty RemapTarget at line %d", lineNo)
			}
			rl.target = strings.Trim(value, "/")
		} else {
			preds, err := parsePredicates(value, lineNo)
			if err != nil {
				return err
			}
			rl.preds = preds
		}
		e.nodes[scope].lines = append(e.nodes[scope].lines, rl)
	}
	return nil
}

// parsePredicates parses "Kind:op,op|Kind2:op" lists. Bare Always and
// Never carry no operands.
func parsePredicates(value string, lineNo int) ([]Predicate, error) {
	if value == "" {
		return nil, errors.Newf(errors.ErrConfigParse, "empty predicate list at line %d", lineNo)
	}

	var preds []Predicate
	for _, part := range strings.Split(value, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.Newf(errors.ErrConfigParse, "empty predicate at line %d", lineNo)
		}

		name := part
		operands := ""
		if colon := strings.Index(part, ":"); colon >= 0 {
			name = strings.TrimSpace(part[:colon])
			operands = strings.TrimSpace(part[colon+1:])
		}

		kind, ok := predicateKindNames[name]
		if !ok {
			return nil, errors.Newf(errors.ErrConfigParse, "unknown predicate %q at line %d", name, lineNo)
		}

		pred := Predicate{Kind: kind}
		if operands != "" {
			for _, op := range strings.Split(operands, ",") {
				op = strings.TrimSpace(op)
				negate := strings.HasPrefix(op, "!")
				op = strings.TrimPrefix(op, "!")
				if op == "" {
					return nil, errors.Newf(errors.ErrConfigParse, "empty operand at line %d", lineNo)
				}
				pred.Operands = append(pred.Operands, Operand{Text: op, Negate: negate})
			}
		}

		switch kind {
		case TargetExists, IsTruthy, NameMatches, Conjunctions:
			if len(pred.Operands) == 0 {
				return nil, errors.Newf(errors.ErrConfigParse, "%s requires operands at line %d", name, lineNo)
			}
		}
		preds = append(preds, pred)
	}
	return preds, nil
}
