package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/process"
	"github.com/codefionn/vo/internal/resolver"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List registered windows and whether they answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer logger.Global().Close()

		statuses, err := newResolver(cfg).Inspect(cmd.Context())
		if err != nil {
			return err
		}

		rows := windowRows(statuses, time.Now())
		out := cmd.OutOrStdout()
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			renderStyled(out, rows)
		} else {
			renderPlain(out, rows)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(windowsCmd)
}

type windowRow struct {
	Workspace  string
	Endpoint   string
	Status     string
	Owner      string
	LastActive string
	alive      bool
}

var windowHeader = windowRow{
	Workspace:  "WORKSPACE",
	Endpoint:   "ENDPOINT",
	Status:     "STATUS",
	Owner:      "OWNER",
	LastActive: "LAST ACTIVE",
}

func (r windowRow) cells() []string {
	return []string{r.Workspace, r.Endpoint, r.Status, r.Owner, r.LastActive}
}

func windowRows(statuses []resolver.Status, now time.Time) []windowRow {
	rows := make([]windowRow, 0, len(statuses))
	for _, st := range statuses {
		status := st.Verdict.String()
		if st.Verdict == resolver.VerdictMismatch {
			status += " (" + st.Reason() + ")"
		}

		owner := st.Entry.OwnerID
		if pid, ok := st.Entry.OwnerPID(); ok {
			state := "gone"
			if process.Alive(pid) {
				state = "running"
			}
			owner = "pid " + strconv.Itoa(pid) + " " + state
		}

		rows = append(rows, windowRow{
			Workspace:  st.Entry.Workspace,
			Endpoint:   st.Entry.Endpoint,
			Status:     status,
			Owner:      owner,
			LastActive: age(now, st.Entry.LastActive),
			alive:      st.Verdict == resolver.VerdictAlive,
		})
	}
	return rows
}

func age(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func renderPlain(w io.Writer, rows []windowRow) {
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r.cells(), "\t"))
	}
}

func renderStyled(w io.Writer, rows []windowRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, lipgloss.NewStyle().Faint(true).Render("no windows registered"))
		return
	}

	widths := make([]int, len(windowHeader.cells()))
	for _, r := range append([]windowRow{windowHeader}, rows...) {
		for i, c := range r.cells() {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	aliveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	staleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	line := func(r windowRow, style func(col int) lipgloss.Style) string {
		cells := r.cells()
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = style(i).Width(widths[i] + 2).Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	fmt.Fprintln(w, line(windowHeader, func(int) lipgloss.Style { return headerStyle }))
	for _, r := range rows {
		fmt.Fprintln(w, line(r, func(col int) lipgloss.Style {
			if col != 2 {
				return lipgloss.NewStyle()
			}
			if r.alive {
				return aliveStyle
			}
			return staleStyle
		}))
	}
}
