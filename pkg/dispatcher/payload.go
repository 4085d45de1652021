package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
)

// Payload is the unit of work handed to "kombi execute": a holder subtree,
// its input elements and where to write the produced elements.
type Payload struct {
	TaskHolder *taskholder.TaskHolder
	Elements   []*element.Element
	OutputPath string
}

type payloadJSON struct {
	TaskHolder json.RawMessage `json:"taskHolder"`
	Elements   json.RawMessage `json:"elements"`
	OutputPath string          `json:"outputPath"`
}

// Write serializes the payload to path.
func (p *Payload) Write(path string) error {
	holder, err := p.TaskHolder.ToJSON()
	if err != nil {
		return err
	}
	elements, err := element.MarshalElements(p.Elements)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(payloadJSON{
		TaskHolder: json.RawMessage(holder),
		Elements:   elements,
		OutputPath: p.OutputPath,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadPayload reads a payload written by Write.
func LoadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	var in payloadJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding payload %s: %w", path, err)
	}
	holder, err := taskholder.CreateFromJSON(string(in.TaskHolder))
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", path, err)
	}
	var elements []*element.Element
	if len(in.Elements) > 0 && string(in.Elements) != "null" {
		if elements, err = element.UnmarshalElements(in.Elements); err != nil {
			return nil, fmt.Errorf("payload %s: %w", path, err)
		}
	}
	return &Payload{TaskHolder: holder, Elements: elements, OutputPath: in.OutputPath}, nil
}

// Execute runs the payload in this process and writes the produced
// elements to OutputPath when set.
func (p *Payload) Execute(ctx context.Context) ([]*element.Element, error) {
	out, err := p.TaskHolder.Run(ctx, p.Elements, taskholder.RunOptions{})
	if err != nil {
		return nil, err
	}
	if p.OutputPath != "" {
		data, err := element.MarshalElements(out)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(p.OutputPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing payload output: %w", err)
		}
	}
	return out, nil
}
