package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"paramlens/internal/checker"
	"paramlens/internal/compare"
	"paramlens/internal/subst"
)

type state int

const (
	stateLoading state = iota
	stateResults
	stateEditing
	stateSaving
	stateFailed
)

type checkDoneMsg struct {
	result *checker.Result
	err    error
}

type saveDoneMsg struct {
	fixed bool
	err   error
}

// ConfigReloadedMsg carries a changed field selection from the config
// watcher. It takes effect on the next check run.
type ConfigReloadedMsg struct {
	FieldNames []string
}

// editSession is one record's edit workflow. It is discarded on cancel;
// nothing survives except what was saved through the host API.
type editSession struct {
	rc       *compare.RecordComparison
	groups   []compare.ParameterGroup
	groupIdx int
	tokens   []int // distinct tokens of the active group
	inputs   []textinput.Model
	focus    int
	errMsg   string // validation error, keeps the session alive
}

// Model is the interactive fix screen.
type Model struct {
	styles     Styles
	checker    *checker.Checker
	datasheet  string
	fieldNames []string

	state   state
	spin    spinner.Model
	result  *checker.Result
	cursor  int
	edit    *editSession
	status  string
	loadErr error
}

// NewModel creates the fix screen for one datasheet.
func NewModel(c *checker.Checker, datasheet string, fieldNames []string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		styles:     DefaultStyles(),
		checker:    c,
		datasheet:  datasheet,
		fieldNames: fieldNames,
		state:      stateLoading,
		spin:       sp,
	}
}

// Init starts the spinner and the initial check.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.runCheck())
}

func (m Model) runCheck() tea.Cmd {
	return func() tea.Msg {
		result, err := m.checker.Check(context.Background(), m.datasheet, m.fieldNames)
		return checkDoneMsg{result: result, err: err}
	}
}

func (m Model) runSave() tea.Cmd {
	s := m.edit
	entries := make(map[int]string, len(s.tokens))
	for i, tok := range s.tokens {
		entries[tok] = s.inputs[i].Value()
	}
	group := s.groups[s.groupIdx]
	rc := s.rc
	return func() tea.Msg {
		fixed, err := m.checker.ApplyMapping(context.Background(), m.datasheet, rc, group, entries)
		return saveDoneMsg{fixed: fixed, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case checkDoneMsg:
		if msg.err != nil {
			m.state = stateFailed
			m.loadErr = msg.err
			return m, nil
		}
		m.result = msg.result
		m.cursor = 0
		m.state = stateResults
		m.status = fmt.Sprintf("%d of %d records flagged",
			len(m.result.Comparisons), len(m.result.Records))
		return m, nil

	case saveDoneMsg:
		return m.handleSaveDone(msg)

	case ConfigReloadedMsg:
		m.fieldNames = msg.FieldNames
		if m.state == stateResults {
			m.status = m.styles.Muted.Render("config reloaded; press r to re-run")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleSaveDone(msg saveDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		var verr *subst.ValidationError
		if errors.As(msg.err, &verr) {
			// ValidationError returns to Editing with the message shown.
			m.state = stateEditing
			m.edit.errMsg = verr.Error()
			return m, nil
		}
		// Host failure: abort the save, keep the record list.
		m.state = stateResults
		m.status = m.styles.Error.Render("save failed: " + msg.err.Error())
		m.edit = nil
		return m, nil
	}

	if msg.fixed {
		m.status = m.styles.Notice.Render("saved; a cyclic renumbering was automatically resolved")
	} else {
		m.status = m.styles.Success.Render("saved")
	}
	m.edit = nil
	// Re-run the check so the list reflects the stored state.
	m.state = stateLoading
	return m, tea.Batch(m.spin.Tick, m.runCheck())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.state {
	case stateResults:
		switch key {
		case "q", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.result.Comparisons)-1 {
				m.cursor++
			}
		case "r":
			m.state = stateLoading
			return m, tea.Batch(m.spin.Tick, m.runCheck())
		case "enter":
			return m.startEdit()
		}

	case stateEditing:
		return m.handleEditKey(key, msg)

	case stateFailed:
		switch key {
		case "q", "esc":
			return m, tea.Quit
		case "r":
			m.state = stateLoading
			m.loadErr = nil
			return m, tea.Batch(m.spin.Tick, m.runCheck())
		}
	}
	return m, nil
}

func (m Model) startEdit() (tea.Model, tea.Cmd) {
	if len(m.result.Comparisons) == 0 {
		return m, nil
	}
	rc := &m.result.Comparisons[m.cursor]
	if !rc.Editable() {
		m.status = m.styles.Notice.Render(
			"editing disabled: fields carry differing parameter counts")
		return m, nil
	}

	s := &editSession{rc: rc, groups: rc.Groups()}
	s.loadGroup(0)
	m.edit = s
	m.state = stateEditing
	m.status = ""
	return m, textinput.Blink
}

func (s *editSession) loadGroup(idx int) {
	s.groupIdx = idx
	s.tokens = distinct(s.groups[idx].Parameters)
	s.inputs = make([]textinput.Model, len(s.tokens))
	for i, tok := range s.tokens {
		in := textinput.New()
		in.CharLimit = 6
		in.Width = 6
		in.Prompt = ""
		in.SetValue(strconv.Itoa(tok))
		s.inputs[i] = in
	}
	s.focus = 0
	s.inputs[0].Focus()
	s.errMsg = ""
}

func (m Model) handleEditKey(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.edit
	switch key {
	case "esc":
		// Cancel discards the session.
		m.edit = nil
		m.state = stateResults
		m.status = m.styles.Muted.Render("edit canceled")
		return m, nil

	case "tab", "shift+tab":
		s.inputs[s.focus].Blur()
		if key == "tab" {
			s.focus = (s.focus + 1) % len(s.inputs)
		} else {
			s.focus = (s.focus - 1 + len(s.inputs)) % len(s.inputs)
		}
		s.inputs[s.focus].Focus()
		return m, textinput.Blink

	case "left", "right":
		if len(s.groups) > 1 {
			idx := s.groupIdx
			if key == "right" {
				idx = (idx + 1) % len(s.groups)
			} else {
				idx = (idx - 1 + len(s.groups)) % len(s.groups)
			}
			s.loadGroup(idx)
			return m, textinput.Blink
		}

	case "enter":
		m.state = stateSaving
		return m, m.runSave()
	}

	var cmd tea.Cmd
	s.inputs[s.focus], cmd = s.inputs[s.focus].Update(msg)
	return m, cmd
}

// View renders the current state.
func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return fmt.Sprintf("\n %s checking datasheet %s...\n", m.spin.View(), m.datasheet)
	case stateFailed:
		return fmt.Sprintf("\n %s\n\n %s\n",
			m.styles.Error.Render("check failed: "+m.loadErr.Error()),
			m.styles.Muted.Render("r retry · q quit"))
	case stateResults:
		return m.viewResults()
	case stateEditing:
		return m.viewEdit()
	case stateSaving:
		return fmt.Sprintf("\n %s saving...\n", m.spin.View())
	}
	return ""
}

func (m Model) viewResults() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Parameter inconsistencies · " + m.datasheet))
	sb.WriteString("\n")

	if len(m.result.Comparisons) == 0 {
		sb.WriteString(m.styles.Success.Render(" all records consistent"))
		sb.WriteString("\n\n")
		sb.WriteString(m.styles.Muted.Render(" r re-run · q quit"))
		sb.WriteString("\n")
		return sb.String()
	}

	for i, rc := range m.result.Comparisons {
		line := fmt.Sprintf("%s  %s", rc.RecordID, summarize(&rc))
		if i == m.cursor {
			sb.WriteString(m.styles.Selected.Render(" > " + line))
		} else {
			sb.WriteString(m.styles.Body.Render("   " + line))
		}
		if !rc.Editable() {
			sb.WriteString(m.styles.Muted.Render("  [not editable]"))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(" " + m.status + "\n")
	}
	sb.WriteString(m.styles.Muted.Render(" ↑/↓ select · enter edit · r re-run · q quit"))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) viewEdit() string {
	s := m.edit
	group := s.groups[s.groupIdx]

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Renumber · " + s.rc.RecordID))
	sb.WriteString("\n")

	names := make([]string, len(group.Fields))
	for i, f := range group.Fields {
		names[i] = f.FieldName
	}
	sb.WriteString(fmt.Sprintf(" group %d/%d · fields: %s\n\n",
		s.groupIdx+1, len(s.groups), strings.Join(names, ", ")))

	for i, tok := range s.tokens {
		cursor := "  "
		if i == s.focus {
			cursor = m.styles.Selected.Render("> ")
		}
		sb.WriteString(fmt.Sprintf(" %s{%d} → %s\n", cursor, tok, s.inputs[i].View()))
	}

	if s.errMsg != "" {
		sb.WriteString("\n " + m.styles.Error.Render(s.errMsg) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(" tab next token · ←/→ group · enter save · esc cancel"))
	sb.WriteString("\n")
	return sb.String()
}

func summarize(rc *compare.RecordComparison) string {
	parts := make([]string, 0, len(rc.Differences))
	for _, d := range rc.Differences {
		parts = append(parts, fmt.Sprintf("%s %v", d.FieldName, d.Parameters))
	}
	return strings.Join(parts, " · ")
}

func distinct(params []int) []int {
	out := make([]int, 0, len(params))
	seen := make(map[int]bool, len(params))
	for _, p := range params {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
