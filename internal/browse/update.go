package browse

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		switch msg.String() {
		case "enter":
			m.filterActive = false
			return m, nil
		case "esc":
			m.filterActive = false
			m.filter = ""
			m.applyFilter()
			return m, nil
		case "backspace":
			if len(m.filter) > 0 {
				runes := []rune(m.filter)
				m.filter = string(runes[:len(runes)-1])
				m.applyFilter()
			}
			return m, nil
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		if msg.Type == tea.KeyRunes {
			m.filter += msg.String()
			m.applyFilter()
			return m, nil
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil

	case "enter", "l", "right":
		if len(m.entries) > 0 && m.cursor < len(m.entries) {
			selected := m.entries[m.cursor]
			if selected.IsDir {
				m.stack = append(m.stack, selected)
				m.filter = ""
				m.filterActive = false
				m.applyFilter()
			}
		}
		return m, nil

	case "backspace", "h", "left":
		if len(m.stack) > 1 {
			m.stack = m.stack[:len(m.stack)-1]
			m.filter = ""
			m.filterActive = false
			m.applyFilter()
		}
		return m, nil

	case "s":
		m.setSort(SortBySize)
		return m, nil

	case "d":
		m.setSort(SortByDisk)
		return m, nil

	case "n":
		m.setSort(SortByName)
		return m, nil

	case "f":
		m.setSort(SortByFiles)
		return m, nil

	case "/":
		m.filterActive = true
		return m, nil

	case "home", "g":
		m.cursor = 0
		return m, nil

	case "end", "G":
		if len(m.entries) > 0 {
			m.cursor = len(m.entries) - 1
		}
		return m, nil
	}

	return m, nil
}
