package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/echodoc-ai/echodoc/pkg/call"
)

// Commands is the part of *call.Controller the consult screen drives.
type Commands interface {
	Mount(ctx context.Context)
	StartCall(ctx context.Context) error
	EndCall(ctx context.Context) error
}

type actionDoneMsg struct {
	action string
	err    error
}

// ConsultModel renders one consultation. Controller commands run inside
// tea.Cmd goroutines because the controller publishes back through the
// program while it works.
type ConsultModel struct {
	ctx context.Context
	ctl Commands

	snap      call.Snapshot
	toast     *call.Toast
	actionErr string
	busy      bool
	width     int

	navigatedTo string
	quitting    bool
}

func NewConsult(ctx context.Context, ctl Commands) ConsultModel {
	if ctx == nil {
		ctx = context.Background()
	}
	return ConsultModel{
		ctx:   ctx,
		ctl:   ctl,
		width: 80,
		snap:  call.Snapshot{Elapsed: call.FormatTime(0)},
	}
}

// NavigatedTo reports where the controller sent the user after the call, or
// "" if the screen was quit by hand.
func (m ConsultModel) NavigatedTo() string { return m.navigatedTo }

func (m ConsultModel) Init() tea.Cmd {
	ctx, ctl := m.ctx, m.ctl
	return func() tea.Msg {
		ctl.Mount(ctx)
		return nil
	}
}

func (m ConsultModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = call.Snapshot(msg)
		return m, nil

	case toastMsg:
		t := call.Toast(msg)
		m.toast = &t
		return m, nil

	case navigateMsg:
		m.navigatedTo = string(msg)
		m.quitting = true
		return m, tea.Quit

	case actionDoneMsg:
		m.busy = false
		m.actionErr = ""
		if msg.err != nil {
			m.actionErr = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m ConsultModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "s":
		if m.busy || m.snap.Phase != call.PhaseIdle {
			return m, nil
		}
		m.busy = true
		m.toast = nil
		return m, m.run("start call", m.ctl.StartCall)

	case "e":
		if m.busy || !m.canEnd() {
			return m, nil
		}
		m.busy = true
		return m, m.run("end call", m.ctl.EndCall)
	}
	return m, nil
}

// canEnd is true during a call and after the voice service hung up on a
// call that produced a transcript, so the report can still be requested.
func (m ConsultModel) canEnd() bool {
	return m.snap.Phase != call.PhaseIdle || len(m.snap.Transcript) > 0
}

func (m ConsultModel) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m ConsultModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render("EchoDoc consultation"))
	b.WriteString("\n")
	b.WriteString(m.viewDetail())
	b.WriteString("\n\n")

	status := idleStyle.Render("○ not connected")
	if m.snap.Connected {
		status = liveStyle.Render("● connected")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		status, "  ",
		timerStyle.Render(m.snap.Elapsed), "  ",
		dimStyle.Render(m.snap.Phase.String()),
	))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Conversation"))
	b.WriteString("\n")
	if len(m.snap.Recent) == 0 && m.snap.LivePreview == "" {
		b.WriteString(dimStyle.Render("  nothing said yet"))
		b.WriteString("\n")
	}
	for _, e := range m.snap.Recent {
		b.WriteString("  " + roleTag(e.Role) + " " + e.Text + "\n")
	}
	if m.snap.LivePreview != "" {
		b.WriteString("  " + roleTag(m.snap.LiveRole) + " " + previewStyle.Render(m.snap.LivePreview+"…") + "\n")
	} else if m.snap.LiveRole != "" {
		b.WriteString("  " + dimStyle.Render(m.snap.LiveRole+" is speaking") + "\n")
	}

	if m.toast != nil {
		b.WriteString("\n")
		if m.toast.Kind == call.ToastError {
			b.WriteString(errorStyle.Render("✗ " + m.toast.Message))
		} else {
			b.WriteString(successStyle.Render("✓ " + m.toast.Message))
		}
		b.WriteString("\n")
	}
	if msg := firstNonEmpty(m.actionErr, m.snap.LastError); msg != "" {
		b.WriteString("\n" + errorStyle.Render(msg) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))
	return b.String()
}

func (m ConsultModel) viewDetail() string {
	switch m.snap.Detail {
	case call.DetailLoading:
		return dimStyle.Render("  loading session…")
	case call.DetailNotFound:
		return errorStyle.Render("  session not found")
	case call.DetailFailed:
		return errorStyle.Render("  " + firstNonEmpty(m.snap.DetailError, "failed to load session"))
	}
	if m.snap.Session == nil {
		return ""
	}
	rec := m.snap.Session
	line := fmt.Sprintf("  %s  %s", rec.SelectedDoctor.Specialist, dimStyle.Render(rec.SessionID))
	if notes := oneLine(rec.Notes); notes != "" {
		line += "\n  " + dimStyle.Render(truncate(notes, max(20, m.width-4)))
	}
	return line
}

func (m ConsultModel) help() string {
	if m.busy {
		return "working…  q quit"
	}
	if m.snap.Phase != call.PhaseIdle {
		return "e end call  q quit"
	}
	if m.canEnd() {
		return "s start call  e finish and build report  q quit"
	}
	return "s start call  q quit"
}

func roleTag(role string) string {
	switch role {
	case call.RoleUser:
		return userRoleStyle.Render(" you ")
	case call.RoleAssistant:
		return assistantRoleStyle.Render(" doctor ")
	}
	return dimStyle.Render("[" + role + "]")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
