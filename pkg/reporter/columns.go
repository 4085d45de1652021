package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/ormasoftchile/kombi/pkg/element"
)

func init() {
	Register("columns", func(w io.Writer) Reporter { return &columns{w: w} })
}

// columns prints one aligned row per output: task, type, name, fullPath.
type columns struct {
	w       io.Writer
	entries []entry
}

func (c *columns) Add(taskName string, e *element.Element) {
	c.entries = append(c.entries, entry{task: taskName, e: e})
}

func (c *columns) Display() error {
	if len(c.entries) == 0 {
		return nil
	}
	header := []string{"TASK", "TYPE", "NAME", "PATH"}
	rows := make([][]string, 0, len(c.entries))
	for _, en := range c.entries {
		rows = append(rows, []string{en.task, en.e.Type(), en.e.Name(), en.e.FullPath()})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	if _, err := fmt.Fprintln(c.w, headerStyle.Render(formatRow(header, widths))); err != nil {
		return err
	}
	for _, row := range rows {
		line := formatRow(row, widths)
		last := len(row) - 1
		// Styles wrap the padded cells so escape codes do not skew alignment.
		task := runewidth.FillRight(row[0], widths[0])
		line = taskStyle.Render(task) + line[len(task):len(line)-len(row[last])] + dimStyle.Render(row[last])
		if _, err := fmt.Fprintln(c.w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}
		parts[i] = runewidth.FillRight(cell, widths[i])
	}
	return strings.Join(parts, "  ")
}
