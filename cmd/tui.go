// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/bmsctl/pkg/bmsclient"
	"github.com/Thermoquad/bmsctl/pkg/transport"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// poller fetches one snapshot of the pack
type poller interface {
	poll(ctx context.Context) (pollResult, error)
}

type pollResult struct {
	status bmsclient.Status
	params bmsclient.Values
}

// TUI model
type model struct {
	ctx      context.Context
	src      poller
	stats    *transport.Statistics
	connInfo string
	category string
	interval time.Duration
	started  time.Time
	spinner  spinner.Model
	polling  bool
	last     *pollResult
	lastAt   time.Time
	polls    int
	failures int
	eventLog []eventLogEntry
	maxLog   int
	width    int
	height   int
	quitting bool
}

// Messages
type tickMsg time.Time
type pollMsg struct {
	result pollResult
	err    error
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(ctx context.Context, src poller, stats *transport.Statistics, connInfo, category string, interval time.Duration) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return model{
		ctx:      ctx,
		src:      src,
		stats:    stats,
		connInfo: connInfo,
		category: category,
		interval: interval,
		started:  time.Now(),
		spinner:  sp,
		polling:  true,
		eventLog: make([]eventLogEntry, 0),
		maxLog:   100,
		width:    80,
		height:   24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.pollCmd(),
		tea.EnterAltScreen,
	)
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) pollCmd() tea.Cmd {
	m.polling = true
	ctx, src := m.ctx, m.src
	return func() tea.Msg {
		r, err := src.poll(ctx)
		return pollMsg{result: r, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.polling {
				return m, m.pollCmd()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.polling {
			return m, nil
		}
		return m, m.pollCmd()

	case pollMsg:
		m.polling = false
		m.polls++
		if msg.err != nil {
			m.failures++
			m.addLogEntry(fmt.Sprintf("poll failed: %v", msg.err), true)
		} else {
			r := msg.result
			if m.last != nil {
				m.logChanges(m.last.status, r.status)
			}
			m.last = &r
			m.lastAt = time.Now()
		}
		if m.ctx.Err() != nil {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.tickCmd()
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLog {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLog:]
	}
}

// logChanges records state transitions between two polls
func (m *model) logChanges(prev, cur bmsclient.Status) {
	if prev.ChargeMOS != cur.ChargeMOS {
		m.addLogEntry(fmt.Sprintf("charge MOS %s", onOff(cur.ChargeMOS)), false)
	}
	if prev.DischargeMOS != cur.DischargeMOS {
		m.addLogEntry(fmt.Sprintf("discharge MOS %s", onOff(cur.DischargeMOS)), false)
	}
	if prev.Alarms != cur.Alarms {
		m.addLogEntry(fmt.Sprintf("alarms 0x%08X -> 0x%08X", prev.Alarms, cur.Alarms), cur.Alarms != 0)
	}
	if prev.Protections != cur.Protections {
		m.addLogEntry(fmt.Sprintf("protections 0x%08X -> 0x%08X", prev.Protections, cur.Protections), cur.Protections != 0)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BMSCTL - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | every %s | up %s | 'r' refresh, 'q' quit",
		m.connInfo, m.interval, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	if m.polling {
		s.WriteString(m.spinner.View() + " " + warningStyle.Render("Polling..."))
	} else if m.last != nil {
		s.WriteString(valueStyle.Render("✓ Updated " + m.lastAt.Format("15:04:05")))
	} else {
		s.WriteString(warningStyle.Render("Waiting for first poll"))
	}
	s.WriteString("\n\n")

	// Pack status
	if m.last != nil {
		st := m.last.status
		pack := strings.Builder{}
		pack.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("Voltage:"), valueStyle.Render(fmt.Sprintf("%.2f V", st.Voltage)),
			labelStyle.Render("Current:"), valueStyle.Render(fmt.Sprintf("%.2f A", st.Current)),
			labelStyle.Render("SOC:"), valueStyle.Render(fmt.Sprintf("%d%%", st.SOC)),
			labelStyle.Render("SOH:"), valueStyle.Render(fmt.Sprintf("%d%%", st.SOH)),
		))
		pack.WriteString(fmt.Sprintf("%s %s   %s %d   %s %s/%s\n",
			labelStyle.Render("Capacity:"), valueStyle.Render(fmt.Sprintf("%.2f/%.2f Ah", st.RemainingCapacity, st.FullCapacity)),
			labelStyle.Render("Cycles:"), st.CycleCount,
			labelStyle.Render("MOS:"), onOff(st.ChargeMOS), onOff(st.DischargeMOS),
		))
		if st.Alarms != 0 || st.Protections != 0 {
			pack.WriteString(errorStyle.Render(fmt.Sprintf("Alarms 0x%08X  Protections 0x%08X", st.Alarms, st.Protections)))
			pack.WriteString("\n")
		}

		cells := make([]string, len(st.Cells))
		for i, v := range st.Cells {
			mark := " "
			if st.Balance&(1<<uint(i)) != 0 {
				mark = "*"
			}
			cells[i] = fmt.Sprintf("%2d:%.3f%s", i+1, v, mark)
		}
		for i := 0; i < len(cells); i += 4 {
			end := min(i+4, len(cells))
			pack.WriteString(strings.Join(cells[i:end], "  "))
			pack.WriteString("\n")
		}
		temps := make([]string, len(st.Temperatures))
		for i, t := range st.Temperatures {
			temps[i] = fmt.Sprintf("%.1f°C", t)
		}
		pack.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Temps:"), strings.Join(temps, " ")))

		s.WriteString(boxStyle.Render(pack.String()))
		s.WriteString("\n\n")

		if len(m.last.params) > 0 {
			s.WriteString(labelStyle.Render(fmt.Sprintf("Category %s:", m.category)))
			s.WriteString("\n")
			params := strings.Builder{}
			for i, v := range m.last.params {
				if i > 0 {
					params.WriteString("\n")
				}
				params.WriteString(fmt.Sprintf("%-24s %s", v.Def.Key, valueStyle.Render(v.String())))
			}
			s.WriteString(boxStyle.Render(params.String()))
			s.WriteString("\n\n")
		}
	}

	// Transport statistics
	snap := m.stats.Snapshot()
	link := fmt.Sprintf("%s %d   %s %d   %s %s   %s %s",
		labelStyle.Render("Requests:"), snap.Requests,
		labelStyle.Render("Responses:"), snap.Responses,
		labelStyle.Render("Timeouts:"), func() string {
			if snap.Timeouts > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", snap.Timeouts))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("RTT:"), valueStyle.Render(snap.AvgRTT.Round(time.Millisecond).String()),
	)
	s.WriteString(boxStyle.Render(link))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := max(m.height-28, 5)
	startIdx := max(len(m.eventLog)-logHeight, 0)

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
