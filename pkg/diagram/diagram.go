// Package diagram renders rule trees as Mermaid flowcharts or ASCII trees.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/kombi/pkg/taskholder"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram of the rule trees rooted at holders.
func Generate(holders []*taskholder.TaskHolder, format Format) (string, error) {
	if len(holders) == 0 {
		return "", fmt.Errorf("no task holders")
	}
	nodes := walk(holders, "n", "", nil)
	switch format {
	case FormatMermaid:
		return generateMermaid(nodes), nil
	case FormatASCII:
		return generateASCII(nodes), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

type node struct {
	id      string
	parent  string
	last    []bool // whether this node and each ancestor is the last sibling
	task    string
	target  string
	match   string
	export  string
	imports []string
	status  taskholder.Status
	regroup string
	wrapper string
}

func walk(holders []*taskholder.TaskHolder, prefix, parent string, last []bool) []node {
	var out []node
	for i, h := range holders {
		id := fmt.Sprintf("%s%d", prefix, i)
		chain := append(append([]bool(nil), last...), i == len(holders)-1)
		n := node{
			id:      id,
			parent:  parent,
			last:    chain,
			task:    h.Task().Type(),
			target:  h.TargetTemplate().Input(),
			match:   matchLabel(h),
			export:  h.ExportTemplate().Input(),
			status:  h.Status(),
			regroup: h.RegroupTag(),
		}
		if name := h.WrapperName(); name != "" && name != taskwrapper.DefaultName {
			n.wrapper = name
		}
		for _, imp := range h.ImportTemplates() {
			n.imports = append(n.imports, imp.Input())
		}
		out = append(out, n)
		out = append(out, walk(h.Children(), id+"_", id, chain)...)
	}
	return out
}

func matchLabel(h *taskholder.TaskHolder) string {
	m := h.Matcher()
	var parts []string
	if types := m.Types(); len(types) > 0 {
		parts = append(parts, strings.Join(types, "|"))
	}
	vars := m.Vars()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+"="+strings.Join(vars[name], ","))
	}
	return strings.Join(parts, " ")
}

// --- Mermaid flowchart ---

func generateMermaid(nodes []node) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString("    START([Elements])\n")

	for _, n := range nodes {
		b.WriteString("    " + nodeDefinition(n) + "\n")
		from := n.parent
		if from == "" {
			from = "START"
		}
		if n.match != "" {
			b.WriteString(fmt.Sprintf("    %s -->|%q| %s\n", from, truncate(escMermaid(n.match), 40), n.id))
		} else {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", from, n.id))
		}
		if n.export != "" {
			exportID := n.id + "_export"
			b.WriteString(fmt.Sprintf("    %s[(\"%s\")]\n", exportID, escMermaid(n.export)))
			b.WriteString(fmt.Sprintf("    %s -.->|\"export\"| %s\n", n.id, exportID))
		}
		for i, imp := range n.imports {
			importID := fmt.Sprintf("%s_import%d", n.id, i)
			b.WriteString(fmt.Sprintf("    %s[(\"%s\")]\n", importID, escMermaid(imp)))
			b.WriteString(fmt.Sprintf("    %s -.->|\"import\"| %s\n", importID, n.id))
		}
	}

	for _, n := range nodes {
		if style := statusStyle(n.status); style != "" {
			b.WriteString(fmt.Sprintf("    style %s %s\n", n.id, style))
		}
	}
	return b.String()
}

func nodeDefinition(n node) string {
	label := statusIcon(n.status) + " " + escMermaid(n.task)
	if n.target != "" {
		label += "<br/>→ " + escMermaid(n.target)
	}
	if n.regroup != "" {
		label += "<br/>regroup " + escMermaid(n.regroup)
	}
	if n.wrapper != "" {
		label += "<br/>wrapper " + escMermaid(n.wrapper)
	}
	switch n.status {
	case taskholder.StatusBypass:
		return fmt.Sprintf(`%s[/"%s"/]`, n.id, label)
	case taskholder.StatusIgnore:
		return fmt.Sprintf(`%s{{"%s"}}`, n.id, label)
	default:
		return fmt.Sprintf(`%s["%s"]`, n.id, label)
	}
}

func statusStyle(s taskholder.Status) string {
	switch s {
	case taskholder.StatusBypass:
		return "fill:#333,stroke:#888,stroke-dasharray: 5 5"
	case taskholder.StatusIgnore:
		return "fill:#511,stroke:#a33,color:#fff"
	default:
		return ""
	}
}

func statusIcon(s taskholder.Status) string {
	switch s {
	case taskholder.StatusBypass:
		return "↷"
	case taskholder.StatusIgnore:
		return "⊘"
	default:
		return "▶"
	}
}

// --- ASCII ---

func generateASCII(nodes []node) string {
	var b strings.Builder

	// Uniform task column so the targets line up.
	width := 0
	prefixes := make([]string, len(nodes))
	for i, n := range nodes {
		prefixes[i] = treePrefix(n.last) + statusIcon(n.status) + " " + n.task
		if w := runewidth.StringWidth(prefixes[i]); w > width {
			width = w
		}
	}

	b.WriteString("●\n")
	for i, n := range nodes {
		line := prefixes[i]
		var details []string
		if n.target != "" {
			details = append(details, "→ "+n.target)
		}
		if n.match != "" {
			details = append(details, "["+n.match+"]")
		}
		if n.regroup != "" {
			details = append(details, "regroup:"+n.regroup)
		}
		if n.wrapper != "" {
			details = append(details, "wrapper:"+n.wrapper)
		}
		if n.export != "" {
			details = append(details, "⇥ "+n.export)
		}
		for _, imp := range n.imports {
			details = append(details, "⇤ "+imp)
		}
		if len(details) > 0 {
			line = runewidth.FillRight(line, width) + "  " + strings.Join(details, "  ")
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	return b.String()
}

func treePrefix(last []bool) string {
	var b strings.Builder
	for i, isLast := range last {
		switch {
		case i < len(last)-1 && isLast:
			b.WriteString("   ")
		case i < len(last)-1:
			b.WriteString("│  ")
		case isLast:
			b.WriteString("└─ ")
		default:
			b.WriteString("├─ ")
		}
	}
	return b.String()
}

// --- string helpers ---

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
