// Package tui implements the interactive delivery watch screen.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hookrun/internal/store"
)

const (
	pollInterval = 2 * time.Second
	historyLimit = 100
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// DeliveryLister is the slice of the store the watch screen needs.
type DeliveryLister interface {
	ListRecent(ctx context.Context, limit int) ([]*store.Delivery, error)
}

// Model is the bubbletea model for delivery watch.
type Model struct {
	lister DeliveryLister

	width  int
	height int

	deliveries []*store.Delivery
	loadErr    error

	deliveryTable table.Model
}

type deliveriesMsg []*store.Delivery
type errMsg error
type tickMsg time.Time

// NewMonitor creates the watch model backed by the delivery log.
func NewMonitor(lister DeliveryLister) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Received", Width: 19},
			{Title: "Endpoint", Width: 24},
			{Title: "ID", Width: 8},
			{Title: "Exit", Width: 4},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		lister:        lister,
		deliveryTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadDeliveries(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadDeliveries()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deliveryTable.SetWidth(m.width - 6)

	case deliveriesMsg:
		m.deliveries = msg
		m.loadErr = nil
		m.updateTable()
		return m, m.scheduleNextPoll()

	case errMsg:
		m.loadErr = msg
		return m, m.scheduleNextPoll()

	case tickMsg:
		return m, m.loadDeliveries()
	}

	m.deliveryTable, cmd = m.deliveryTable.Update(msg)
	return m, cmd
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		rows = append(rows, deliveryToRow(d))
	}
	m.deliveryTable.SetRows(rows)
}

func deliveryToRow(d *store.Delivery) table.Row {
	statusSym := "○"
	switch d.Status {
	case store.StatusLaunched:
		statusSym = statusRunning.Render("◉")
	case store.StatusSucceeded:
		statusSym = statusOK.Render("●")
	case store.StatusFailed:
		statusSym = statusFailed.Render("∅")
	case store.StatusTimedOut:
		statusSym = statusFailed.Render("◑")
	}

	exit := "-"
	if d.ExitCode != nil {
		exit = fmt.Sprintf("%d", *d.ExitCode)
	}

	duration := "-"
	if d.CompletedAt != nil {
		duration = d.CompletedAt.Sub(d.ReceivedAt).Round(time.Millisecond).String()
	} else if d.Status == store.StatusLaunched {
		duration = time.Since(d.ReceivedAt).Round(time.Second).String()
	}

	id := d.ID
	if len(id) > 8 {
		id = id[:8]
	}

	return table.Row{
		statusSym,
		d.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
		d.Endpoint,
		id,
		exit,
		duration,
	}
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	deliveriesView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Deliveries"),
			m.deliveryTable.View(),
		),
	)

	detailView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Detail"),
			m.renderDetail(),
		),
	)

	status := ""
	if m.loadErr != nil {
		status = statusFailed.Render(fmt.Sprintf(" delivery log unavailable: %v", m.loadErr))
	}

	help := helpStyle.Render(" [q] Quit • [r] Refresh • [↑/↓] Select")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			deliveriesView,
			detailView,
			status,
			help,
		),
	)
}

// renderDetail shows the selected delivery's error output, if any.
func (m Model) renderDetail() string {
	idx := m.deliveryTable.Cursor()
	if idx < 0 || idx >= len(m.deliveries) {
		return "  No deliveries yet..."
	}

	d := m.deliveries[idx]
	var lines []string
	lines = append(lines, fmt.Sprintf("ID:       %s", d.ID))
	lines = append(lines, fmt.Sprintf("Script:   %s", d.Script))
	lines = append(lines, fmt.Sprintf("Status:   %s", d.Status))
	if d.LastError != nil {
		lines = append(lines, fmt.Sprintf("Error:    %s", *d.LastError))
	}
	if d.Stderr != nil && *d.Stderr != "" {
		stderr := *d.Stderr
		if len(stderr) > 500 {
			stderr = stderr[:500] + "…"
		}
		lines = append(lines, "Stderr:", stderr)
	}

	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// --- Commands ---

func (m Model) loadDeliveries() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		deliveries, err := m.lister.ListRecent(ctx, historyLimit)
		if err != nil {
			return errMsg(err)
		}
		return deliveriesMsg(deliveries)
	}
}

func (m Model) scheduleNextPoll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
