package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"capnpdiff/internal/change"
	"capnpdiff/internal/driver"
	"capnpdiff/internal/schema"
	"capnpdiff/internal/source"
)

// Result delivers the finished diff (or its error) to the browser.
type Result struct {
	Diff    *change.Diff
	Sources *source.FileSet
	Err     error
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	wireStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	codeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	noneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	snippetStyle = lipgloss.NewStyle().Faint(true)
)

type browserModel struct {
	title  string
	events <-chan driver.Event
	result <-chan Result

	spinner spinner.Model
	stage   string

	diff    *change.Diff
	sources *source.FileSet
	paths   map[schema.NodeID]string
	err     error

	filter   change.Breakage
	filterOn bool
	visible  []int // indices into diff.Changes after filtering

	cursor int
	top    int
	width  int
	height int
	done   bool
}

type eventMsg driver.Event
type resultMsg Result

// NewBrowser returns a Bubble Tea model that shows pipeline progress and
// then an interactive change list.
func NewBrowser(title string, events <-chan driver.Event, result <-chan Result) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	return &browserModel{
		title:   title,
		events:  events,
		result:  result,
		spinner: sp,
		stage:   "starting",
		width:   80,
		height:  24,
	}
}

func (m *browserModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitEvent(), m.waitResult())
}

func (m *browserModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m *browserModel) waitResult() tea.Cmd {
	return func() tea.Msg {
		return resultMsg(<-m.result)
	}
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case eventMsg:
		m.stage = fmt.Sprintf("%s %s", driver.Event(msg).Stage, driver.Event(msg).Side)
		if driver.Event(msg).Cached {
			m.stage += " (cached)"
		}
		return m, m.waitEvent()

	case resultMsg:
		m.diff = msg.Diff
		m.sources = msg.Sources
		m.err = msg.Err
		m.done = true
		if m.diff != nil {
			m.paths = make(map[schema.NodeID]string, len(m.diff.Files))
			for _, f := range m.diff.Files {
				m.paths[f.ID] = f.Path
			}
		}
		m.refilter()
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *browserModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "g":
		m.cursor = 0
	case "G":
		m.cursor = len(m.visible) - 1
		if m.cursor < 0 {
			m.cursor = 0
		}
	case "w":
		m.toggleFilter(change.BreakWire)
	case "c":
		m.toggleFilter(change.BreakCode)
	case "n":
		m.toggleFilter(change.BreakNone)
	case "a":
		m.filterOn = false
		m.refilter()
	}
	m.clampScroll()
	return m, nil
}

func (m *browserModel) toggleFilter(b change.Breakage) {
	if m.filterOn && m.filter == b {
		m.filterOn = false
	} else {
		m.filterOn = true
		m.filter = b
	}
	m.refilter()
}

func (m *browserModel) refilter() {
	m.visible = m.visible[:0]
	if m.diff == nil {
		return
	}
	for i := range m.diff.Changes {
		if m.filterOn && m.diff.Changes[i].Breakage != m.filter {
			continue
		}
		m.visible = append(m.visible, i)
	}
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.top = 0
}

func (m *browserModel) listHeight() int {
	h := m.height - 5 // title, status, snippet, help, padding
	if h < 3 {
		h = 3
	}
	return h
}

func (m *browserModel) clampScroll() {
	h := m.listHeight()
	if m.cursor < m.top {
		m.top = m.cursor
	}
	if m.cursor >= m.top+h {
		m.top = m.cursor - h + 1
	}
}

func (m *browserModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteByte('\n')

	if !m.done {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.stage)
		return b.String()
	}
	if m.err != nil {
		fmt.Fprintf(&b, "error: %v\n", m.err)
		b.WriteString(dimStyle.Render("press q to quit"))
		b.WriteByte('\n')
		return b.String()
	}
	if len(m.visible) == 0 {
		b.WriteString("no changes\n")
		b.WriteString(dimStyle.Render("a: show all · q: quit"))
		b.WriteByte('\n')
		return b.String()
	}

	h := m.listHeight()
	end := m.top + h
	if end > len(m.visible) {
		end = len(m.visible)
	}
	for row := m.top; row < end; row++ {
		c := &m.diff.Changes[m.visible[row]]
		line := m.changeLine(c)
		if row == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString(m.snippetLine())
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%d/%d  ", m.cursor+1, len(m.visible))
	b.WriteString(dimStyle.Render("j/k: move · w/c/n: filter · a: all · q: quit"))
	b.WriteByte('\n')
	return b.String()
}

func (m *browserModel) changeLine(c *change.Change) string {
	label := breakageStyle(c.Breakage).Render(fmt.Sprintf("%-4s", strings.ToUpper(c.Breakage.String())))
	loc := dimStyle.Render(fmt.Sprintf("%s:%d", m.paths[c.File], c.Span.Start))
	line := fmt.Sprintf("%s %s  %s", label, c.Describe(), loc)
	return runewidth.Truncate(line, m.width, "…")
}

// snippetLine shows the source line of the selected change, if loaded.
func (m *browserModel) snippetLine() string {
	if len(m.visible) == 0 || m.sources == nil {
		return ""
	}
	c := &m.diff.Changes[m.visible[m.cursor]]
	f := m.sources.Get(c.Span.File)
	if f == nil {
		return ""
	}
	start, _ := m.sources.Resolve(c.Span)
	text := strings.TrimSpace(f.GetLine(start.Line))
	if text == "" {
		return ""
	}
	return snippetStyle.Render(runewidth.Truncate(fmt.Sprintf("%d | %s", start.Line, text), m.width, "…"))
}

func breakageStyle(b change.Breakage) lipgloss.Style {
	switch b {
	case change.BreakWire:
		return wireStyle
	case change.BreakCode:
		return codeStyle
	default:
		return noneStyle
	}
}
