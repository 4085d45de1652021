package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
	"github.com/ormasoftchile/kombi/pkg/resource"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type elementData struct {
	FilePath          string `json:"filePath"`
	SerializedElement string `json:"serializedElement"`
}

type taskJSON struct {
	Type           string                              `json:"type"`
	Options        *orderedmap.OrderedMap[string, any] `json:"options"`
	ElementOptions map[string][][]any                  `json:"elementOptions"`
	ElementLists   []string                            `json:"elementLists,omitempty"`
	Metadata       map[string]any                      `json:"metadata"`
	ElementData    []elementData                       `json:"elementData"`
	Resources      []string                            `json:"resources"`
}

type taskJSONIn struct {
	Type           string                                          `json:"type"`
	Options        *orderedmap.OrderedMap[string, json.RawMessage] `json:"options"`
	ElementOptions map[string]json.RawMessage                      `json:"elementOptions"`
	ElementLists   []string                                        `json:"elementLists"`
	Metadata       json.RawMessage                                 `json:"metadata"`
	ElementData    []elementData                                   `json:"elementData"`
	Resources      []string                                        `json:"resources"`
}

// ToJSON serializes the task. Element values inside options are replaced by
// their serialization and their positions recorded in elementOptions: null
// for an option that is itself an element, a list of paths otherwise.
// Options holding an element slice are listed in elementLists.
func (t *Task) ToJSON() (string, error) {
	out := taskJSON{
		Type:           t.Type(),
		Options:        orderedmap.New[string, any](),
		ElementOptions: map[string][][]any{},
		Metadata:       t.metadata,
		ElementData:    []elementData{},
		Resources:      resource.Loaded(),
	}
	for p := t.options.Oldest(); p != nil; p = p.Next() {
		var paths [][]any
		encoded, err := encodeOption(p.Value, nil, &paths, 0)
		if err != nil {
			return "", fmt.Errorf("%w: %q on %s: %w", ErrInvalidOption, p.Key, t.Type(), err)
		}
		out.Options.Set(p.Key, encoded)
		if _, ok := p.Value.([]*element.Element); ok {
			out.ElementLists = append(out.ElementLists, p.Key)
		}
		if len(paths) == 1 && len(paths[0]) == 0 {
			out.ElementOptions[p.Key] = nil
		} else if len(paths) > 0 {
			out.ElementOptions[p.Key] = paths
		}
	}
	for p := t.targets.Oldest(); p != nil; p = p.Next() {
		data, err := p.Key.ToJSON()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidElement, err)
		}
		out.ElementData = append(out.ElementData, elementData{FilePath: p.Value, SerializedElement: data})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("serializing task %s: %w", t.Type(), err)
	}
	return string(data), nil
}

func encodeOption(v any, path []any, paths *[][]any, depth int) (any, error) {
	if depth > maxOptionDepth {
		return nil, fmt.Errorf("nested deeper than %d levels", maxOptionDepth)
	}
	switch val := v.(type) {
	case *element.Element:
		data, err := val.ToJSON()
		if err != nil {
			return nil, err
		}
		*paths = append(*paths, append([]any{}, path...))
		return data, nil
	case []*element.Element:
		items := make([]any, len(val))
		for i, e := range val {
			items[i] = e
		}
		return encodeOption(items, path, paths, depth)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			encoded, err := encodeOption(item, append(path[:len(path):len(path)], i), paths, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = encoded
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			encoded, err := encodeOption(item, append(path[:len(path):len(path)], k), paths, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = encoded
		}
		return out, nil
	default:
		return v, nil
	}
}

// CreateFromJSON restores a task serialized by ToJSON. Resources listed in
// the payload are required before the task type is looked up.
func CreateFromJSON(data string) (*Task, error) {
	var in taskJSONIn
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	if err := resource.Require(in.Resources...); err != nil {
		return nil, err
	}
	t, err := Create(in.Type)
	if err != nil {
		return nil, err
	}

	metadata, err := jsonvalue.DecodeMap(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMetadata, in.Type, err)
	}
	t.metadata = metadata

	lists := make(map[string]bool, len(in.ElementLists))
	for _, name := range in.ElementLists {
		lists[name] = true
	}
	t.options = orderedmap.New[string, any]()
	if in.Options != nil {
		for p := in.Options.Oldest(); p != nil; p = p.Next() {
			value, err := jsonvalue.Decode(p.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: %q on %s: %w", ErrInvalidOption, p.Key, in.Type, err)
			}
			if raw, ok := in.ElementOptions[p.Key]; ok {
				if value, err = decodeElementOption(value, raw); err != nil {
					return nil, fmt.Errorf("%w: %q on %s: %w", ErrInvalidOption, p.Key, in.Type, err)
				}
			}
			if lists[p.Key] {
				if value, err = elementList(value); err != nil {
					return nil, fmt.Errorf("%w: %q on %s: %w", ErrInvalidOption, p.Key, in.Type, err)
				}
			}
			t.options.Set(p.Key, value)
		}
	}

	for _, item := range in.ElementData {
		e, err := element.CreateFromJSON(item.SerializedElement)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidElement, err)
		}
		t.Add(e, item.FilePath)
	}
	return t, nil
}

func elementList(value any) ([]*element.Element, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("element list holds %T", value)
	}
	out := make([]*element.Element, len(items))
	for i, item := range items {
		e, ok := item.(*element.Element)
		if !ok {
			return nil, fmt.Errorf("element list item %d holds %T", i, item)
		}
		out[i] = e
	}
	return out, nil
}

func decodeElementOption(value any, raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("element option holds %T", value)
		}
		return element.CreateFromJSON(s)
	}

	decoded, err := jsonvalue.Decode(raw)
	if err != nil {
		return nil, err
	}
	paths, _ := decoded.([]any)
	for _, p := range paths {
		steps, ok := p.([]any)
		if !ok || len(steps) == 0 {
			return nil, fmt.Errorf("malformed element path %v", p)
		}
		if err := replaceAt(value, steps); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// replaceAt walks container along steps and replaces the serialized element
// found at the end with the restored element.
func replaceAt(container any, steps []any) error {
	node := container
	for i, step := range steps {
		last := i == len(steps)-1
		switch c := node.(type) {
		case []any:
			idx, ok := step.(int)
			if !ok || idx < 0 || idx >= len(c) {
				return fmt.Errorf("invalid list index %v", step)
			}
			if last {
				e, err := restoreLeaf(c[idx])
				if err != nil {
					return err
				}
				c[idx] = e
				return nil
			}
			node = c[idx]
		case map[string]any:
			key, ok := step.(string)
			if !ok {
				key = strconv.Itoa(asInt(step))
			}
			item, ok := c[key]
			if !ok {
				return fmt.Errorf("missing key %q", key)
			}
			if last {
				e, err := restoreLeaf(item)
				if err != nil {
					return err
				}
				c[key] = e
				return nil
			}
			node = item
		default:
			return fmt.Errorf("cannot descend into %T", node)
		}
	}
	return nil
}

func asInt(v any) int {
	i, _ := v.(int)
	return i
}

func restoreLeaf(v any) (*element.Element, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("element position holds %T", v)
	}
	return element.CreateFromJSON(s)
}
