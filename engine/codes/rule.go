package codes

import "fmt"

// Rule selects how hierarchy level and parent code are derived from a
// code's segments. Two conventions exist in the data this system imports;
// RuleFlat is the default.
type Rule int

const (
	// RuleFlat gives every segment one level. The trailing separator carries
	// no meaning and is dropped from FullCode:
	//   =A -> 1, =A.B -> 2 (parent =A), =A.B. -> same node as =A.B
	RuleFlat Rule = iota

	// RuleEntityContainer gives every segment two levels: the entity "A" and
	// its container "A." one level deeper.
	//   =A -> 1, =A. -> 2 (parent =A), =A.B -> 3 (parent =A.), =A.B. -> 4
	RuleEntityContainer
)

func (r Rule) String() string {
	switch r {
	case RuleFlat:
		return "flat"
	case RuleEntityContainer:
		return "entity-container"
	default:
		return "unknown"
	}
}

// ParseRule maps a config string onto a Rule.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "", "flat":
		return RuleFlat, nil
	case "entity-container", "entity_container":
		return RuleEntityContainer, nil
	}
	return RuleFlat, fmt.Errorf("unknown level rule %q", s)
}

// node is the rule's view of one position in the hierarchy.
type node struct {
	fullCode string
	level    int
	parent   string
}

// derive is the single decision point for level and parent derivation.
// segments is never empty.
func (r Rule) derive(prefix string, segments []string, trailing bool) node {
	n := len(segments)
	switch r {
	case RuleEntityContainer:
		entity := join(prefix, segments)
		if trailing {
			return node{fullCode: entity + Separator, level: 2 * n, parent: entity}
		}
		nd := node{fullCode: entity, level: 2*n - 1}
		if n > 1 {
			nd.parent = join(prefix, segments[:n-1]) + Separator
		}
		return nd
	default:
		nd := node{fullCode: join(prefix, segments), level: n}
		if n > 1 {
			nd.parent = join(prefix, segments[:n-1])
		}
		return nd
	}
}

// chain lists every node from the root down to the node described by
// segments/trailing, each produced by derive so parent links always agree.
func (r Rule) chain(prefix string, segments []string, trailing bool) []node {
	var out []node
	for i := 1; i <= len(segments); i++ {
		last := i == len(segments)
		switch r {
		case RuleEntityContainer:
			out = append(out, r.derive(prefix, segments[:i], false))
			if !last || trailing {
				out = append(out, r.derive(prefix, segments[:i], true))
			}
		default:
			out = append(out, r.derive(prefix, segments[:i], false))
		}
	}
	return out
}
