// Package rules parses the Crysknife.ini-style configuration and
// evaluates, per target path, whether a file is in scope and where it
// maps. Scopes form a tree keyed by path prefixes; rules inherit by
// concatenation from the Global root down, outer rules first.
package rules

// RuleKey is one recognized configuration directive.
type RuleKey int

const (
	SkipIf RuleKey = iota
	RemapIf
	FlattenIf
	RemapTarget
)

var ruleKeyNames = map[string]RuleKey{
	"SkipIf":      SkipIf,
	"RemapIf":     RemapIf,
	"FlattenIf":   FlattenIf,
	"RemapTarget": RemapTarget,
}

func (k RuleKey) String() string {
	switch k {
	case SkipIf:
		return "SkipIf"
	case RemapIf:
		return "RemapIf"
	case FlattenIf:
		return "FlattenIf"
	default:
		return "RemapTarget"
	}
}

// PredicateKind is the closed set of predicates. Conjunctions is
// syntactically a predicate but acts as a combination directive for
// the rule it appears in.
type PredicateKind int

const (
	TargetExists PredicateKind = iota
	IsTruthy
	NameMatches
	Always
	Never
	Conjunctions
)

var predicateKindNames = map[string]PredicateKind{
	"TargetExists": TargetExists,
	"IsTruthy":     IsTruthy,
	"NameMatches":  NameMatches,
	"Always":       Always,
	"Never":        Never,
	"Conjunctions": Conjunctions,
}

func (k PredicateKind) String() string {
	switch k {
	case TargetExists:
		return "TargetExists"
	case IsTruthy:
		return "IsTruthy"
	case NameMatches:
		return "NameMatches"
	case Always:
		return "Always"
	case Never:
		return "Never"
	default:
		return "Conjunctions"
	}
}

// Operand is one predicate argument; Negate flips its result before
// combination.
type Operand struct {
	Text   string
	Negate bool
}

// Predicate is one entry of a rule's predicate list.
type Predicate struct {
	Kind     PredicateKind
	Operands []Operand
}

// ruleLine is one parsed Key=Value (or +Key=Value) directive, kept in
// the scope it was declared in.
type ruleLine struct {
	key        RuleKey
	plus       bool
	baseDomain bool
	preds      []Predicate // *If keys
	target     string      // RemapTarget
	scope      int         // owning scope node index
}

// Facts is the fact set a caller supplies for one evaluation:
// destination-root existence checks, boolean defines, and the
// candidate file name.
type Facts struct {
	// FileName is the candidate file's base name, for NameMatches.
	FileName string
	// TargetExists checks a path relative to the destination root.
	TargetExists func(rel string) bool
	// Defines are boolean-ish variables from the command line.
	Defines map[string]string
}

// Decision is the resolved action set for one target path.
type Decision struct {
	// Skip excludes the file from all further processing.
	Skip bool
	// Path is the (possibly remapped and/or flattened) target path;
	// equal to the input when no mapping rule fired.
	Path string
	// Remapped and Flattened report which mappings fired.
	Remapped  bool
	Flattened bool
}
