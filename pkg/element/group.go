package element

import "github.com/ormasoftchile/kombi/pkg/procedure"

// DefaultGroupTag is the tag Group uses when none is given.
const DefaultGroupTag = "group"

// Glob collects the children of e, descending into non-leaf children when
// recursive is set. filterTypes restricts the result to the named types and
// their registered subtypes; traversal still visits filtered-out elements.
func (e *Element) Glob(filterTypes []string, recursive bool) ([]*Element, error) {
	var allowed map[string]bool
	if len(filterTypes) > 0 {
		allowed = make(map[string]bool)
		for _, name := range filterTypes {
			for _, sub := range RegisteredSubTypes(name) {
				allowed[sub] = true
			}
		}
	}

	var out []*Element
	var walk func(*Element) error
	walk = func(parent *Element) error {
		children, err := parent.Children()
		if err != nil {
			return err
		}
		for _, child := range children {
			if allowed == nil || allowed[child.Type()] {
				out = append(out, child)
			}
			if recursive && !child.IsLeaf() {
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(e); err != nil {
		return nil, err
	}
	return out, nil
}

// Group partitions elements by the string value of tag. Keyed groups come
// first in order of first occurrence, followed by one singleton group per
// element without the tag.
func Group(elements []*Element, tag string) [][]*Element {
	if tag == "" {
		tag = DefaultGroupTag
	}
	var (
		keyed     [][]*Element
		index     = map[string]int{}
		ungrouped [][]*Element
	)
	for _, e := range elements {
		v, ok := e.LookupTag(tag)
		if !ok {
			ungrouped = append(ungrouped, []*Element{e})
			continue
		}
		key := procedure.ToString(v)
		i, seen := index[key]
		if !seen {
			i = len(keyed)
			index[key] = i
			keyed = append(keyed, nil)
		}
		keyed[i] = append(keyed[i], e)
	}
	return append(keyed, ungrouped...)
}
