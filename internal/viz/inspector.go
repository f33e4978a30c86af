package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/simgrad/internal/analysis"
	"github.com/san-kum/simgrad/internal/storage"
)

// Inspector browses the stored Jacobians of one run.
type Inspector struct {
	meta    storage.RunMetadata
	records []storage.JacobianRecord
	norms   []float64

	cursor int
	block  Block
	theme  Theme

	width, height int
}

func NewInspector(meta storage.RunMetadata, records []storage.JacobianRecord) *Inspector {
	return &Inspector{
		meta:    meta,
		records: records,
		norms:   Norms(records),
		theme:   ThemeCyberpunk,
		width:   80,
		height:  24,
	}
}

// WithTheme selects the color theme by name.
func (m *Inspector) WithTheme(name string) *Inspector {
	m.theme = GetTheme(name)
	return m
}

func (m *Inspector) Cursor() int { return m.cursor }

func (m *Inspector) Block() Block { return m.block }

func (m *Inspector) Init() tea.Cmd { return nil }

func (m *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Inspector) handleKey(msg tea.KeyMsg) tea.Cmd {
	last := len(m.records) - 1
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return tea.Quit
	case "right", "l":
		m.cursor = min(m.cursor+1, max(last, 0))
	case "left", "h":
		m.cursor = max(m.cursor-1, 0)
	case "pgdown", "J":
		m.cursor = min(m.cursor+10, max(last, 0))
	case "pgup", "K":
		m.cursor = max(m.cursor-10, 0)
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(last, 0)
	case "tab", "b":
		m.block = (m.block + 1) % numBlocks
	case "shift+tab", "B":
		m.block = (m.block + numBlocks - 1) % numBlocks
	case "t":
		m.theme = m.theme.next()
	}
	return nil
}

func (m *Inspector) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s  %s", m.meta.ID, m.meta.Model)))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(Subtle.Render("no jacobians recorded"))
		b.WriteString("\n\n")
		b.WriteString(KeyHint.Render("q quit"))
		return b.String()
	}

	rec := m.records[m.cursor]
	b.WriteString(m.tabs())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %d/%d\n\n",
		MetricLabel.Render("step"), MetricValue.Render(fmt.Sprint(rec.Step)),
		MetricLabel.Render("t"), MetricValue.Render(fmt.Sprintf("%.3f", rec.Time)),
		MetricLabel.Render("record"), m.cursor+1, len(m.records)))

	switch {
	case rec.Jacobians == nil:
		b.WriteString(ErrorText.Render("skipped: " + rec.Error))
	default:
		mtx, rows, cols := Pick(rec.Jacobians, m.block)
		if mtx == nil {
			b.WriteString(Subtle.Render(m.block.String() + " not available"))
			break
		}
		b.WriteString(Panel.Render(RenderMatrix(mtx, rows, cols, m.theme)))
		if m.block == BlockState {
			b.WriteString("\n")
			b.WriteString(m.summary(rec))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(MetricLabel.Render("‖∂x'/∂x‖ "))
	b.WriteString(Sparkline(m.norms, max(m.width-12, 10)))
	b.WriteString("\n\n")
	b.WriteString(KeyHint.Render("←/→ step  pgup/pgdn ±10  tab block  t theme  q quit"))
	return b.String()
}

func (m *Inspector) tabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary).Underline(true)
	parts := make([]string, numBlocks)
	for b := Block(0); b < numBlocks; b++ {
		if b == m.block {
			parts[b] = active.Render(b.String())
		} else {
			parts[b] = Subtle.Render(b.String())
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Inspector) summary(rec storage.JacobianRecord) string {
	sv, err := analysis.SingularValues(rec.Jacobians.State)
	if err != nil {
		return ErrorText.Render(err.Error())
	}
	return fmt.Sprintf("%s %s  %s %s",
		MetricLabel.Render("σmax"), MetricValue.Render(fmt.Sprintf("%.4g", sv[0])),
		MetricLabel.Render("cond"), MetricValue.Render(fmt.Sprintf("%.4g", analysis.Condition(rec.Jacobians.State))))
}

// Run starts the inspector full screen and blocks until the user quits.
func (m *Inspector) Run() error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
