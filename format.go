package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
)

// Statusf writes progress to stderr unless --quiet is set. Stdout is kept
// for command output.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var sizeUnits = []string{"KB", "MB", "GB"}

// formatSize renders n in binary units, topping out at GB.
func formatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	v := float64(n) / 1024
	unit := 0

	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", v, sizeUnits[unit])
}

// formatTime shows the clock time for this year's timestamps and the year
// for older ones, ls style.
func formatTime(t time.Time) string {
	switch {
	case t.IsZero():
		return "-"
	case t.Year() == time.Now().Year():
		return t.Format("Jan _2 15:04")
	default:
		return t.Format("Jan _2  2006")
	}
}

// printTable aligns rows under headers on a terminal. Piped output is bare
// tab-separated rows, ready for cut or awk.
func printTable(w io.Writer, tty bool, headers []string, rows [][]string) {
	if !tty {
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}

		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
