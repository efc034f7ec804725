package routing

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyTable = errors.New("archive map has no rules")
	ErrBadShape   = errors.New("archive map must be a mapping of prefix to [container, subfolder] or a list of rules")
)

// LoadTable reads an archive map file. JSON is accepted as YAML, which keeps
// the declaration order of object keys.
//
// Two shapes are understood:
//
//	{"audit_log_x": ["SapDspContainer", "audit"], ...}
//
//	- prefix: audit_log_x
//	  container: SapDspContainer
//	  subfolder: audit
func LoadTable(path string, fallback Destination) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	t, err := ParseTable(b, fallback)
	if err != nil {
		return Table{}, fmt.Errorf("failed to load archive map %s: %w", path, err)
	}
	return t, nil
}

func ParseTable(b []byte, fallback Destination) (Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Table{}, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return Table{}, ErrEmptyTable
	}

	var rules []Rule
	var err error
	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		rules, err = rulesFromMapping(root)
	case yaml.SequenceNode:
		err = root.Decode(&rules)
	default:
		err = ErrBadShape
	}
	if err != nil {
		return Table{}, err
	}

	t := Table{
		Rules:    rules,
		Fallback: fallback,
	}
	return t, t.Validate()
}

func rulesFromMapping(n *yaml.Node) ([]Rule, error) {
	var rules []Rule
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		r := Rule{Prefix: k.Value}
		switch v.Kind {
		case yaml.SequenceNode:
			var pair []string
			if err := v.Decode(&pair); err != nil {
				return nil, err
			}
			if len(pair) != 2 {
				return nil, fmt.Errorf("line %d: prefix %q: expected [container, subfolder], got %d values", v.Line, k.Value, len(pair))
			}
			r.Container, r.Subfolder = pair[0], pair[1]
		case yaml.MappingNode:
			if err := v.Decode(&r); err != nil {
				return nil, err
			}
			r.Prefix = k.Value
		default:
			return nil, fmt.Errorf("line %d: %w", v.Line, ErrBadShape)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (t Table) Validate() error {
	if len(t.Rules) == 0 {
		return ErrEmptyTable
	}
	errs := []error{}
	seen := map[string]int{}
	for i, r := range t.Rules {
		if r.Prefix == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty prefix", i))
		}
		if r.Container == "" || r.Subfolder == "" {
			errs = append(errs, fmt.Errorf("rule %d (%s): container and subfolder are required", i, r.Prefix))
		}
		p := normalize(r.Prefix)
		if j, ok := seen[p]; ok {
			errs = append(errs, fmt.Errorf("rule %d (%s): duplicate of rule %d", i, r.Prefix, j))
		}
		seen[p] = i
	}
	if t.Fallback.Container == "" || t.Fallback.Subfolder == "" {
		errs = append(errs, errors.New("fallback destination is required"))
	}
	return errors.Join(errs...)
}
