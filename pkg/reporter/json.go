package reporter

import (
	"encoding/json"
	"io"

	"github.com/ormasoftchile/kombi/pkg/element"
)

func init() {
	Register("json", func(w io.Writer) Reporter { return &jsonReporter{w: w} })
}

type jsonRecord struct {
	Task     string         `json:"task"`
	Type     string         `json:"type"`
	FullPath string         `json:"fullPath"`
	Vars     map[string]any `json:"vars"`
	Tags     map[string]any `json:"tags"`
}

// jsonReporter writes one JSON array with a record per output.
type jsonReporter struct {
	w       io.Writer
	records []jsonRecord
}

func (j *jsonReporter) Add(taskName string, e *element.Element) {
	rec := jsonRecord{
		Task:     taskName,
		Type:     e.Type(),
		FullPath: e.FullPath(),
		Vars:     map[string]any{},
		Tags:     map[string]any{},
	}
	for _, name := range e.VarNames() {
		rec.Vars[name], _ = e.LookupVar(name)
	}
	for _, name := range e.TagNames() {
		rec.Tags[name], _ = e.LookupTag(name)
	}
	j.records = append(j.records, rec)
}

func (j *jsonReporter) Display() error {
	records := j.records
	if records == nil {
		records = []jsonRecord{}
	}
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
