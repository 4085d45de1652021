package element

import (
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
)

type elementJSON struct {
	Vars            map[string]any `json:"vars"`
	ContextVarNames []string       `json:"contextVarNames"`
	Tags            map[string]any `json:"tags"`
	Children        []string       `json:"children"`
	InitData        any            `json:"serializeInitializationData"`
}

type elementJSONIn struct {
	Vars            json.RawMessage `json:"vars"`
	ContextVarNames []string        `json:"contextVarNames"`
	Tags            json.RawMessage `json:"tags"`
	Children        []string        `json:"children"`
	InitData        json.RawMessage `json:"serializeInitializationData"`
}

// ToJSON serializes the element. Children are included only when they are
// cached in the active scope.
func (e *Element) ToJSON() (string, error) {
	out := elementJSON{
		Vars:            e.vars,
		ContextVarNames: e.ContextVarNames(),
		Tags:            e.tags,
		InitData:        e.data,
	}
	if f := e.typ.initDataHook(); f != nil {
		out.InitData = f(e)
	}
	if !serializable(out.InitData) {
		return "", fmt.Errorf("%w: initialization data of %s is %T", ErrInvalidVar, e, out.InitData)
	}
	if children, ok := e.cachedChildren(); ok {
		out.Children = make([]string, 0, len(children))
		for _, child := range children {
			data, err := child.ToJSON()
			if err != nil {
				return "", err
			}
			out.Children = append(out.Children, data)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("serializing %s: %w", e, err)
	}
	return string(data), nil
}

// MarshalJSON embeds the element serialization as a JSON string.
func (e *Element) MarshalJSON() ([]byte, error) {
	data, err := e.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

// CreateFromJSON restores an element serialized by ToJSON.
func CreateFromJSON(data string) (*Element, error) {
	var in elementJSONIn
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("decoding element: %w", err)
	}
	vars, err := jsonvalue.DecodeMap(in.Vars)
	if err != nil {
		return nil, fmt.Errorf("decoding element vars: %w", err)
	}
	tags, err := jsonvalue.DecodeMap(in.Tags)
	if err != nil {
		return nil, fmt.Errorf("decoding element tags: %w", err)
	}
	typeName, _ := vars[VarType].(string)
	t, ok := RegisteredType(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}

	initData, err := jsonvalue.Decode(in.InitData)
	if err != nil {
		return nil, fmt.Errorf("decoding initialization data of %q: %w", typeName, err)
	}
	if parse := t.parseInitDataHook(); parse != nil {
		if initData, err = parse(initData); err != nil {
			return nil, fmt.Errorf("%w: type %q: %w", ErrTypeConstruction, typeName, err)
		}
	}

	e := &Element{
		typ:         t,
		data:        initData,
		vars:        vars,
		contextVars: make(map[string]bool, len(in.ContextVarNames)),
		tags:        tags,
	}
	for _, name := range in.ContextVarNames {
		e.contextVars[name] = true
	}

	if in.Children != nil && !e.IsLeaf() {
		children := make([]*Element, 0, len(in.Children))
		for _, c := range in.Children {
			child, err := CreateFromJSON(c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		e.storeChildren(children)
	}
	return e, nil
}

// UnmarshalElements decodes a JSON array of element-JSON strings, the format
// of exported output files.
func UnmarshalElements(data []byte) ([]*Element, error) {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding element list: %w", err)
	}
	out := make([]*Element, 0, len(items))
	for _, item := range items {
		e, err := CreateFromJSON(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MarshalElements encodes elements as a JSON array of element-JSON strings.
func MarshalElements(elements []*Element) ([]byte, error) {
	items := make([]string, 0, len(elements))
	for _, e := range elements {
		data, err := e.ToJSON()
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return json.MarshalIndent(items, "", "  ")
}
