package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/procedure"
)

func init() {
	Register("detailed", func(w io.Writer) Reporter { return &detailed{w: w} })
}

// detailed renders a markdown section per output element listing its
// variables and tags.
type detailed struct {
	w       io.Writer
	entries []entry
}

func (d *detailed) Add(taskName string, e *element.Element) {
	d.entries = append(d.entries, entry{task: taskName, e: e})
}

func (d *detailed) Display() error {
	if len(d.entries) == 0 {
		return nil
	}
	_, err := io.WriteString(d.w, renderMarkdown(d.markdown())+"\n")
	return err
}

func (d *detailed) markdown() string {
	var b strings.Builder
	for i, en := range d.entries {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", en.e.Name())
		fmt.Fprintf(&b, "- **task:** %s\n", en.task)
		fmt.Fprintf(&b, "- **type:** %s\n", en.e.Type())
		fmt.Fprintf(&b, "- **path:** `%s`\n\n", en.e.FullPath())

		b.WriteString("| variable | value | context |\n|---|---|---|\n")
		for _, name := range en.e.VarNames() {
			v, _ := en.e.LookupVar(name)
			ctx := ""
			if en.e.IsContextVar(name) {
				ctx = "yes"
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", name, cell(v), ctx)
		}

		if tags := en.e.TagNames(); len(tags) > 0 {
			b.WriteString("\n| tag | value |\n|---|---|\n")
			for _, name := range tags {
				v, _ := en.e.LookupTag(name)
				fmt.Fprintf(&b, "| %s | %s |\n", name, cell(v))
			}
		}
	}
	return b.String()
}

func cell(v any) string {
	return strings.ReplaceAll(procedure.ToString(v), "|", `\|`)
}

// renderMarkdown styles md for the terminal, falling back to the raw text
// when rendering fails.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
