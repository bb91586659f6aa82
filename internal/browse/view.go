package browse

import (
	"fmt"
	"strings"
)

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	headerLines := 0

	writeLine := func(line string) {
		b.WriteString(line)
		b.WriteString("\n")
		headerLines++
	}

	writeLine(titleStyle.Render("mtdu - Disk Usage Browser"))

	cur := m.current()
	writeLine(pathStyle.Render(fmt.Sprintf("Path: %s", cur.Path)))

	dirInfo := fmt.Sprintf("Apparent: %s | Disk: %s | %s files | %s subdirs",
		formatSize(cur.ApparentSize), formatSize(cur.DiskUsage),
		formatCount(cur.FileCount), formatCount(cur.DirCount))

	status := fmt.Sprintf("Items: %s", formatCount(int64(len(m.entries))))
	if m.filter != "" {
		status += fmt.Sprintf(" | Filter: %q", m.filter)
	}
	writeLine(statusStyle.Render(status))

	if m.filterActive {
		writeLine(filterStyle.Render(fmt.Sprintf("Filter: %s_", m.filter)))
	} else if m.filter != "" {
		writeLine(filterStyle.Render(fmt.Sprintf("Filter: %s", m.filter)))
	}

	nameLabel := "NAME"
	switch m.sort {
	case SortByDisk:
		nameLabel += " (sort: disk)"
	case SortByName:
		nameLabel += " (sort: name)"
	case SortByFiles:
		nameLabel += " (sort: files)"
	default:
		nameLabel += " (sort: size)"
	}
	header := fmt.Sprintf("%-10s %-10s %8s  %s", "APPARENT", "DISK", "FILES", nameLabel)
	writeLine(headerStyle.Render(header))

	footerLines := 2
	visibleRows := m.height - headerLines - footerLines
	if visibleRows < 5 {
		visibleRows = 5
	}

	startIdx := 0
	if m.cursor >= visibleRows {
		startIdx = m.cursor - visibleRows + 1
	}
	endIdx := len(m.entries)
	if endIdx > startIdx+visibleRows {
		endIdx = startIdx + visibleRows
	}

	for i := startIdx; i < endIdx; i++ {
		e := m.entries[i]
		b.WriteString(m.formatEntry(e, i == m.cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(statusStyle.Render(dirInfo))
	b.WriteString("\n")
	help := m.helpLine()
	if len(m.entries) > 0 {
		help = fmt.Sprintf("%s [%d/%d]", help, m.cursor+1, len(m.entries))
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) formatEntry(e *Node, selected bool) string {
	name := e.Name
	if e.IsDir {
		name += "/"
	}
	style := fileStyle
	if e.IsDir {
		style = dirStyle
	}
	line := fmt.Sprintf("%-10s %-10s %8s  %s",
		formatSize(e.ApparentSize), formatSize(e.DiskUsage), formatCount(e.FileCount),
		style.Render(name))
	if selected {
		return selectedStyle.Render(line)
	}
	return line
}
