package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/jacobian"
)

// Block selects one of the four matrices of a transition.
type Block int

const (
	BlockState Block = iota
	BlockControl
	BlockReward
	BlockRewardControl
	numBlocks
)

func (b Block) String() string {
	switch b {
	case BlockState:
		return "∂x'/∂x"
	case BlockControl:
		return "∂x'/∂u"
	case BlockReward:
		return "∂r/∂x"
	case BlockRewardControl:
		return "∂r/∂u"
	default:
		return fmt.Sprintf("Block(%d)", int(b))
	}
}

// Pick returns the block of j with its row and column labels, or nil when
// the transition has no such block.
func Pick(j *jacobian.Jacobians, b Block) (m mat.Matrix, rows, cols []string) {
	state := StateLabels(j.Nq, j.Nv)
	control := ControlLabels(j.Nu)

	switch b {
	case BlockState:
		return j.State, state, state
	case BlockControl:
		if j.Control != nil {
			return j.Control, state, control
		}
	case BlockReward:
		if j.Reward != nil {
			return j.Reward, []string{"r"}, state
		}
	case BlockRewardControl:
		if j.RewardControl != nil {
			return j.RewardControl, []string{"r"}, control
		}
	}
	return nil, nil, nil
}

func StateLabels(nq, nv int) []string {
	out := make([]string, 0, nq+nv)
	for i := 0; i < nq; i++ {
		out = append(out, fmt.Sprintf("q%d", i))
	}
	for i := 0; i < nv; i++ {
		out = append(out, fmt.Sprintf("v%d", i))
	}
	return out
}

func ControlLabels(nu int) []string {
	out := make([]string, nu)
	for i := range out {
		out[i] = fmt.Sprintf("u%d", i)
	}
	return out
}

const cellWidth = 10

// RenderMatrix draws m as a labelled grid. Each entry is colored on a log
// scale of its magnitude relative to the largest entry, toward the theme's
// Positive or Negative color by sign.
func RenderMatrix(m mat.Matrix, rows, cols []string, theme Theme) string {
	r, c := m.Dims()
	peak := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := math.Abs(m.At(i, j)); !math.IsNaN(v) {
				peak = math.Max(peak, v)
			}
		}
	}

	label := lipgloss.NewStyle().Foreground(theme.Muted).Width(5)
	head := lipgloss.NewStyle().Foreground(theme.Primary).Width(cellWidth).Align(lipgloss.Right)

	var b strings.Builder
	b.WriteString(label.Render(""))
	for j := 0; j < c; j++ {
		b.WriteString(head.Render(labelAt(cols, j)))
	}
	b.WriteByte('\n')

	for i := 0; i < r; i++ {
		b.WriteString(label.Render(labelAt(rows, i)))
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			cell := lipgloss.NewStyle().Width(cellWidth).Align(lipgloss.Right).Foreground(heat(v, peak, theme))
			b.WriteString(cell.Render(fmt.Sprintf("%.3g", v)))
		}
		if i < r-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func labelAt(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprint(i)
}

// heat maps v to a color. Entries six decades below peak fade to Zero.
func heat(v, peak float64, theme Theme) lipgloss.Color {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return theme.Error
	case v == 0 || peak == 0:
		return theme.Zero
	}

	t := 1 + math.Log10(math.Abs(v)/peak)/6
	if v > 0 {
		return Blend(theme.Zero, theme.Positive, t)
	}
	return Blend(theme.Zero, theme.Negative, t)
}
