// Package wizard holds the interactive terminal screens.
package wizard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brcamerge/brcamerge/internal/colname"
	"github.com/brcamerge/brcamerge/internal/mapping"
)

// SortField controls the order suggestions are listed in.
type SortField int

const (
	SortByOrder SortField = iota
	SortByName
	SortByCategory
	SortByScore
	sortFieldCount
)

var sortLabels = []string{"suggested", "name", "category", "score"}

type reviewEntry struct {
	group    mapping.Group
	order    int
	accepted bool
	visible  bool
}

// ReviewModel is the bubbletea model for accepting and renaming column
// suggestions before they are added to the mapping file.
type ReviewModel struct {
	entries    []reviewEntry
	sourceKeys []string
	existing   map[string]bool
	cursor     int
	filter     string
	filtering  bool

	renaming bool
	input    textinput.Model
	err      string

	sortField SortField

	done      bool
	cancelled bool
	width     int
	height    int

	visibleIdxs []int
}

// NewReviewModel lists groups for review. Exact groups shared by two or more
// sources start accepted. existing holds unified names already in the
// mapping file; renames may not reuse them.
func NewReviewModel(groups []mapping.Group, sourceKeys, existing []string) ReviewModel {
	entries := make([]reviewEntry, len(groups))
	for i, g := range groups {
		entries[i] = reviewEntry{
			group:    g,
			order:    i,
			accepted: g.Phase == mapping.PhaseExact && g.Sources() >= 2,
			visible:  true,
		}
	}
	taken := make(map[string]bool, len(existing))
	for _, n := range existing {
		taken[n] = true
	}

	ti := textinput.New()
	ti.Placeholder = "unified_name"
	ti.CharLimit = 64
	ti.Width = 40

	m := ReviewModel{
		entries:    entries,
		sourceKeys: sourceKeys,
		existing:   taken,
		input:      ti,
		width:      100,
		height:     24,
	}
	m.recomputeVisible()
	return m
}

func (m ReviewModel) Init() tea.Cmd {
	return nil
}

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case m.renaming:
			return m.updateRename(msg)
		case m.filtering:
			return m.updateFilter(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m ReviewModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = ""
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case "up", "k":
		m.moveCursor(-1)

	case "down", "j":
		m.moveCursor(1)

	case "home":
		m.cursor = 0

	case "end":
		m.cursor = max(0, len(m.visibleIdxs)-1)

	case " ":
		m.toggleCurrent()

	case "a":
		m.setVisible(true)

	case "n":
		m.setVisible(false)

	case "/":
		m.filtering = true
		m.filter = ""
		return m, nil

	case "s":
		m.cycleSort()

	case "r":
		if idx, ok := m.current(); ok {
			m.renaming = true
			m.input.SetValue(m.entries[idx].group.Unified)
			m.input.CursorEnd()
			return m, m.input.Focus()
		}

	case "enter":
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m ReviewModel) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.renaming = false
		m.err = ""
		m.input.Blur()
		return m, nil

	case "enter":
		if err := m.renameCurrent(m.input.Value()); err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.renaming = false
		m.err = ""
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ReviewModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter = ""
		m.applyFilter()

	case "enter":
		m.filtering = false

	case "backspace":
		if len(m.filter) > 0 {
			r := []rune(m.filter)
			m.filter = string(r[:len(r)-1])
			m.applyFilter()
		}

	default:
		if msg.Type == tea.KeyRunes {
			m.filter += string(msg.Runes)
			m.applyFilter()
		}
	}
	return m, nil
}

func (m ReviewModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Review Column Suggestions") + "\n\n")

	if m.filtering {
		b.WriteString(highlightStyle.Render("  Filter: ") + m.filter + "█\n\n")
	} else if m.filter != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  Filter: %s (/ to change, esc in filter to clear)", m.filter)) + "\n\n")
	}

	header := fmt.Sprintf("  %-3s %-28s %-14s %-6s %5s  %s", "", "Unified name", "Category", "Phase", "Score", strings.Join(m.sourceKeys, " | "))
	b.WriteString(dimStyle.Render(header) + "\n")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", max(0, min(m.width-4, 96)))) + "\n")

	listHeight := max(m.height-14, 5)
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	end := min(start+listHeight, len(m.visibleIdxs))

	if len(m.visibleIdxs) == 0 {
		b.WriteString(dimStyle.Render("  No suggestions match the filter") + "\n")
	}

	for vi := start; vi < end; vi++ {
		e := m.entries[m.visibleIdxs[vi]]

		checkbox := "[ ]"
		if e.accepted {
			checkbox = selectedStyle.Render("[x]")
		}
		cursor := "  "
		nameStyle := lipgloss.NewStyle()
		if vi == m.cursor {
			cursor = highlightStyle.Render("> ")
			nameStyle = nameStyle.Bold(true)
		}
		phase := string(e.group.Phase)
		if e.group.Phase == mapping.PhaseFuzzy {
			phase = fuzzyStyle.Render(fmt.Sprintf("%-6s", phase))
		} else {
			phase = fmt.Sprintf("%-6s", phase)
		}

		cols := make([]string, len(m.sourceKeys))
		for i, k := range m.sourceKeys {
			cols[i] = "-"
			if c, ok := e.group.Columns[k]; ok {
				cols[i] = truncate(c, 24)
			}
		}

		line := fmt.Sprintf("%s%s %-28s %-14s %s %5.2f  %s",
			cursor, checkbox, nameStyle.Render(truncate(e.group.Unified, 28)),
			e.group.Category, phase, e.group.Score, strings.Join(cols, " | "))
		b.WriteString(line + "\n")
	}

	if len(m.visibleIdxs) > listHeight {
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n  Showing %d-%d of %d", start+1, end, len(m.visibleIdxs))) + "\n")
	}
	b.WriteString("\n")

	if m.renaming {
		b.WriteString(highlightStyle.Render("  Rename to: ") + m.input.View() + "\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render("  "+m.err) + "\n")
	}

	summary := fmt.Sprintf("  Accepted: %d of %d suggestions", m.acceptedCount(), len(m.entries))
	b.WriteString(summaryStyle.Render(summary) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  Sort: %s", sortLabels[m.sortField])) + "\n\n")
	b.WriteString(dimStyle.Render("  space toggle • r rename • a all • n none • / filter • s sort • enter save • q quit") + "\n")

	return b.String()
}

// Accepted returns the accepted groups in suggestion order, or nil if the
// review was cancelled.
func (m ReviewModel) Accepted() []mapping.Group {
	if m.cancelled {
		return nil
	}
	var picked []reviewEntry
	for _, e := range m.entries {
		if e.accepted {
			picked = append(picked, e)
		}
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].order < picked[j].order })
	out := make([]mapping.Group, len(picked))
	for i, e := range picked {
		out[i] = e.group
	}
	return out
}

// Done returns true if the model finished.
func (m ReviewModel) Done() bool {
	return m.done
}

// Cancelled returns true if the user cancelled.
func (m ReviewModel) Cancelled() bool {
	return m.cancelled
}

func (m *ReviewModel) current() (int, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visibleIdxs) {
		return 0, false
	}
	return m.visibleIdxs[m.cursor], true
}

func (m *ReviewModel) moveCursor(delta int) {
	if len(m.visibleIdxs) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.visibleIdxs)-1)
}

func (m *ReviewModel) toggleCurrent() {
	if idx, ok := m.current(); ok {
		m.entries[idx].accepted = !m.entries[idx].accepted
	}
}

func (m *ReviewModel) setVisible(accepted bool) {
	for _, vi := range m.visibleIdxs {
		m.entries[vi].accepted = accepted
	}
}

// renameCurrent gives the entry under the cursor a new unified name. The
// name is normalized and must not collide with another suggestion or an
// existing mapping entry. A renamed entry is accepted.
func (m *ReviewModel) renameCurrent(raw string) error {
	idx, ok := m.current()
	if !ok {
		return fmt.Errorf("nothing selected")
	}
	name := colname.Normalize(raw)
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if m.existing[name] {
		return fmt.Errorf("%s is already in the mapping file", name)
	}
	for i, e := range m.entries {
		if i != idx && e.group.Unified == name {
			return fmt.Errorf("%s is already suggested for another group", name)
		}
	}
	m.entries[idx].group.Unified = name
	m.entries[idx].accepted = true
	return nil
}

func (m *ReviewModel) applyFilter() {
	lower := strings.ToLower(m.filter)
	for i := range m.entries {
		e := &m.entries[i]
		if m.filter == "" {
			e.visible = true
			continue
		}
		e.visible = strings.Contains(e.group.Unified, lower) || strings.Contains(string(e.group.Category), lower)
		for _, c := range e.group.Columns {
			if strings.Contains(strings.ToLower(c), lower) {
				e.visible = true
			}
		}
	}
	m.recomputeVisible()
	if m.cursor >= len(m.visibleIdxs) {
		m.cursor = max(0, len(m.visibleIdxs)-1)
	}
}

func (m *ReviewModel) recomputeVisible() {
	m.visibleIdxs = m.visibleIdxs[:0]
	for i, e := range m.entries {
		if e.visible {
			m.visibleIdxs = append(m.visibleIdxs, i)
		}
	}
}

func (m *ReviewModel) cycleSort() {
	m.sortField = (m.sortField + 1) % sortFieldCount
	sort.SliceStable(m.entries, func(i, j int) bool {
		a, b := m.entries[i], m.entries[j]
		switch m.sortField {
		case SortByName:
			return a.group.Unified < b.group.Unified
		case SortByCategory:
			ra, rb := mapping.Rank(a.group.Category), mapping.Rank(b.group.Category)
			if ra != rb {
				return ra < rb
			}
			return a.order < b.order
		case SortByScore:
			if a.group.Score != b.group.Score {
				return a.group.Score > b.group.Score
			}
			return a.order < b.order
		}
		return a.order < b.order
	})
	m.recomputeVisible()
	m.cursor = 0
}

func (m *ReviewModel) acceptedCount() int {
	n := 0
	for _, e := range m.entries {
		if e.accepted {
			n++
		}
	}
	return n
}
