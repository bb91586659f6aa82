// Package browse implements an interactive top-N directory browser over
// an in-memory size tree produced by one mtdu run. Unlike a database-backed
// browser it holds no state beyond that single tree: there is nothing to
// reload, so navigation is just pointer-following.
package browse

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Node is one entry in the size tree mtdu builds while walking: a file or
// a directory with its aggregated totals already computed.
type Node struct {
	Name         string
	Path         string
	IsDir        bool
	ApparentSize int64
	DiskUsage    int64
	FileCount    int64
	DirCount     int64
	Children     []*Node
}

// SortColumn selects which totals order a directory's children.
type SortColumn int

const (
	SortBySize SortColumn = iota
	SortByDisk
	SortByName
	SortByFiles
)

func (s SortColumn) String() string {
	switch s {
	case SortByDisk:
		return "disk"
	case SortByName:
		return "name"
	case SortByFiles:
		return "files"
	default:
		return "size"
	}
}

// Model holds the browser state for one bubbletea program.
type Model struct {
	root    *Node
	stack   []*Node // navigation stack, stack[len(stack)-1] is the current directory
	entries []*Node // stack top's children, sorted and filtered
	cursor  int
	sort    SortColumn
	width   int
	height  int

	filter       string
	filterActive bool
}

// New builds a Model rooted at root, ready to run with tea.NewProgram.
func New(root *Node) *Model {
	m := &Model{
		root:  root,
		stack: []*Node{root},
		sort:  SortBySize,
	}
	m.applyFilter()
	return m
}

// Init implements tea.Model. The tree is already fully built in memory,
// so there is no asynchronous load to kick off.
func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) current() *Node {
	return m.stack[len(m.stack)-1]
}

func (m *Model) setSort(s SortColumn) {
	m.sort = s
	m.applyFilter()
}

func (m *Model) applyFilter() {
	children := append([]*Node(nil), m.current().Children...)
	sortChildren(children, m.sort)

	if m.filter == "" {
		m.entries = children
	} else {
		needle := strings.ToLower(m.filter)
		filtered := make([]*Node, 0, len(children))
		for _, c := range children {
			if strings.Contains(strings.ToLower(c.Name), needle) {
				filtered = append(filtered, c)
			}
		}
		m.entries = filtered
	}
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func sortChildren(nodes []*Node, sort SortColumn) {
	less := func(i, j int) bool {
		switch sort {
		case SortByDisk:
			return nodes[i].DiskUsage > nodes[j].DiskUsage
		case SortByName:
			return nodes[i].Name < nodes[j].Name
		case SortByFiles:
			return nodes[i].FileCount > nodes[j].FileCount
		default:
			return nodes[i].ApparentSize > nodes[j].ApparentSize
		}
	}
	insertionSort(nodes, less)
}

// insertionSort keeps sorting dependency-free within the package (no
// reliance on sort.Slice's reflection path for a handful of directory
// entries at a time).
func insertionSort(nodes []*Node, less func(i, j int) bool) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

func (m *Model) helpLine() string {
	if m.filterActive {
		return "Type to filter | Enter: apply | Esc: clear | q: quit"
	}
	return "up/down move | enter: open | backspace: close | s/d/n/f: sort | /: filter | q: quit"
}
