package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shardlight/kvbridge/handle"
	"github.com/shardlight/kvbridge/shim"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	createdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	destroyedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const eventLogSize = 12

// inspectorModel renders the live handle table: per-kind counts plus a
// rolling log of lifecycle events, fed by a registry observer.
type inspectorModel struct {
	shim      *shim.Shim
	events    chan handle.Event
	log       []string
	live      map[handle.Kind]int
	spin      spinner.Model
	created   int
	destroyed int
	guest     string
	guestErr  error
	guestDone bool
}

type handleEventMsg handle.Event

type guestDoneMsg struct {
	err error
}

// chanObserver forwards registry events into the inspector's channel.
// Events are dropped rather than blocking the registry when the UI
// falls behind.
type chanObserver struct {
	ch chan handle.Event
}

func (o *chanObserver) OnHandleEvent(e handle.Event) {
	select {
	case o.ch <- e:
	default:
	}
}

func runInteractive(s *shim.Shim, wasmFile, funcName, dbDir string) error {
	events := make(chan handle.Event, 256)
	obs := &chanObserver{ch: events}
	s.Registry().Subscribe(obs)
	defer s.Registry().Unsubscribe(obs)

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := &inspectorModel{
		shim:   s,
		events: events,
		live:   make(map[handle.Kind]int),
		spin:   spin,
		guest:  wasmFile,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	if wasmFile != "" {
		go func() {
			err := run(s, wasmFile, funcName, dbDir)
			p.Send(guestDoneMsg{err: err})
		}()
	}

	_, err := p.Run()
	return err
}

func (m *inspectorModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.spin.Tick)
}

func (m *inspectorModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return handleEventMsg(<-m.events)
	}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case handleEventMsg:
		e := handle.Event(msg)
		switch e.Type {
		case handle.EventCreated:
			m.created++
			m.live[e.Kind]++
			m.pushLog(createdStyle.Render("+ create"), e)
		case handle.EventDestroyed:
			m.destroyed++
			m.live[e.Kind]--
			m.pushLog(destroyedStyle.Render("- destroy"), e)
		}
		return m, m.waitForEvent()

	case guestDoneMsg:
		m.guestDone = true
		m.guestErr = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *inspectorModel) pushLog(verb string, e handle.Event) {
	line := fmt.Sprintf("%s %s #%d", verb, e.Kind, e.Handle)
	m.log = append(m.log, line)
	if len(m.log) > eventLogSize {
		m.log = m.log[len(m.log)-eventLogSize:]
	}
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("kvbridge handle inspector"))
	b.WriteString("\n\n")

	if m.guest != "" {
		status := m.spin.View() + "running"
		if m.guestDone {
			status = "finished"
			if m.guestErr != nil {
				status = destroyedStyle.Render("failed: " + m.guestErr.Error())
			}
		}
		fmt.Fprintf(&b, "guest %s: %s\n\n", m.guest, status)
	}

	kinds := []handle.Kind{
		handle.KindRateLimiter,
		handle.KindDB,
		handle.KindIterator,
		handle.KindWriteBatch,
		handle.KindSnapshot,
	}
	for _, k := range kinds {
		fmt.Fprintf(&b, "  %s %s\n",
			kindStyle.Render(fmt.Sprintf("%-12s", k.String())),
			countStyle.Render(fmt.Sprintf("%4d live", m.live[k])))
	}

	fmt.Fprintf(&b, "\n  total: %s / %s  (live now: %d)\n",
		createdStyle.Render(fmt.Sprintf("%d created", m.created)),
		destroyedStyle.Render(fmt.Sprintf("%d destroyed", m.destroyed)),
		m.shim.Live())

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render("q: quit"))
	return b.String()
}
