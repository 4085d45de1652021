package taskholder

import (
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
	"github.com/ormasoftchile/kombi/pkg/task"
)

type templatesJSON struct {
	Target  string   `json:"target"`
	Filter  string   `json:"filter"`
	Export  string   `json:"export"`
	Profile string   `json:"profile"`
	Import  []string `json:"import"`
}

type holderJSON struct {
	Template        templatesJSON  `json:"template"`
	Vars            map[string]any `json:"vars"`
	Tags            map[string]any `json:"tags"`
	ContextVarNames []string       `json:"contextVarNames"`
	Status          Status         `json:"status"`
	RegroupTag      string         `json:"regroupTag"`
	Task            string         `json:"task"`
	SubTaskHolders  []*holderJSON  `json:"subTaskHolders"`
}

type holderJSONIn struct {
	Template        templatesJSON   `json:"template"`
	Vars            json.RawMessage `json:"vars"`
	Tags            json.RawMessage `json:"tags"`
	ContextVarNames []string        `json:"contextVarNames"`
	Status          string          `json:"status"`
	RegroupTag      string          `json:"regroupTag"`
	Task            string          `json:"task"`
	SubTaskHolders  []*holderJSONIn `json:"subTaskHolders"`
}

func (h *TaskHolder) toJSONValue() (*holderJSON, error) {
	taskData, err := h.task.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", h.task.Type(), err)
	}
	out := &holderJSON{
		Template: templatesJSON{
			Target:  h.target.Input(),
			Filter:  h.filter.Input(),
			Export:  h.export.Input(),
			Profile: h.profile.Input(),
			Import:  []string{},
		},
		Vars:            h.vars,
		Tags:            h.tags,
		ContextVarNames: h.ContextVarNames(),
		Status:          h.status,
		RegroupTag:      h.regroupTag,
		Task:            taskData,
		SubTaskHolders:  []*holderJSON{},
	}
	if out.ContextVarNames == nil {
		out.ContextVarNames = []string{}
	}
	for _, imp := range h.imports {
		out.Template.Import = append(out.Template.Import, imp.Input())
	}
	for _, child := range h.children {
		c, err := child.toJSONValue()
		if err != nil {
			return nil, err
		}
		out.SubTaskHolders = append(out.SubTaskHolders, c)
	}
	return out, nil
}

// ToJSON serializes the holder subtree.
func (h *TaskHolder) ToJSON() (string, error) {
	v, err := h.toJSONValue()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalJSON implements json.Marshaler with the ToJSON layout.
func (h *TaskHolder) MarshalJSON() ([]byte, error) {
	v, err := h.toJSONValue()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *TaskHolder) UnmarshalJSON(data []byte) error {
	restored, err := CreateFromJSON(string(data))
	if err != nil {
		return err
	}
	*h = *restored
	return nil
}

// CreateFromJSON restores a holder subtree serialized by ToJSON.
func CreateFromJSON(data string) (*TaskHolder, error) {
	var in holderJSONIn
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("decoding task holder: %w", err)
	}
	return fromJSONValue(&in)
}

func fromJSONValue(in *holderJSONIn) (*TaskHolder, error) {
	t, err := task.CreateFromJSON(in.Task)
	if err != nil {
		return nil, err
	}
	h := New(t, in.Template.Target, in.Template.Filter, in.Template.Export)
	h.SetProfileTemplate(in.Template.Profile)
	h.SetImportTemplates(in.Template.Import)

	if h.status, err = ParseStatus(in.Status); err != nil {
		return nil, err
	}
	h.regroupTag = in.RegroupTag

	if h.vars, err = jsonvalue.DecodeMap(in.Vars); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVar, err)
	}
	if h.tags, err = jsonvalue.DecodeMap(in.Tags); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	for _, name := range in.ContextVarNames {
		h.contextVars[name] = true
	}
	for _, sub := range in.SubTaskHolders {
		child, err := fromJSONValue(sub)
		if err != nil {
			return nil, err
		}
		h.children = append(h.children, child)
	}
	return h, nil
}
