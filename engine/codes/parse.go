package codes

import "strings"

// Parser parses codes under a fixed derivation Rule.
type Parser struct {
	Rule Rule
}

// Default parses with RuleFlat.
var Default = Parser{Rule: RuleFlat}

// Parse parses code with the default rule.
func Parse(code string) (Code, error) { return Default.Parse(code) }

// Expand expands code with the default rule.
func Expand(code string) []Code { return Default.Expand(code) }

// Parse parses one encoded string.
func (p Parser) Parse(code string) (Code, error) {
	prefix, aspect, segments, trailing, err := split(code)
	if err != nil {
		return Code{}, err
	}
	return p.build(prefix, aspect, segments, p.Rule.derive(prefix, segments, trailing)), nil
}

// Expand returns every ancestor from the root segment down to code itself.
// It returns nil when code does not parse.
func (p Parser) Expand(code string) []Code {
	prefix, aspect, segments, trailing, err := split(code)
	if err != nil {
		return nil
	}
	nodes := p.Rule.chain(prefix, segments, trailing)
	out := make([]Code, 0, len(nodes))
	for _, nd := range nodes {
		out = append(out, p.build(prefix, aspect, segmentsOf(nd, prefix), nd))
	}
	return out
}

// BatchResult pairs an input with its parse outcome.
type BatchResult struct {
	Input string `json:"code"`
	Code  *Code  `json:"parsed"`
	Error string `json:"error,omitempty"`
}

// ParseBatch parses every input, keeping failures as entries with Error set.
func (p Parser) ParseBatch(inputs []string) []BatchResult {
	out := make([]BatchResult, len(inputs))
	for i, in := range inputs {
		out[i].Input = in
		c, err := p.Parse(in)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		out[i].Code = &c
	}
	return out
}

func (p Parser) build(prefix string, aspect AspectType, segments []string, nd node) Code {
	segs := make([]string, len(segments))
	copy(segs, segments)
	return Code{
		FullCode:   nd.fullCode,
		Prefix:     prefix,
		AspectType: aspect,
		Level:      nd.level,
		ParentCode: nd.parent,
		Segments:   segs,
	}
}

// split validates the input and breaks it into prefix, aspect and segments.
func split(code string) (string, AspectType, []string, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", "", nil, false, &ParseError{Input: code, Reason: "empty"}
	}
	prefix, aspect, ok := matchPrefix(code)
	if !ok {
		return "", "", nil, false, &ParseError{Input: code, Reason: "unknown prefix"}
	}
	body := code[len(prefix):]
	segments := splitBody(body)
	if len(segments) == 0 {
		return "", "", nil, false, &ParseError{Input: code, Reason: "no segments"}
	}
	return prefix, aspect, segments, strings.HasSuffix(body, Separator), nil
}

// segmentsOf recovers the segment list of a chain node from its full code.
func segmentsOf(nd node, prefix string) []string {
	return splitBody(strings.TrimPrefix(nd.fullCode, prefix))
}
