// Package output provides CLI output formatting utilities
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Printer handles formatted output to the terminal
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

// ResolveColors reports whether colors should be used on a terminal,
// honoring NO_COLOR and TERM=dumb.
func ResolveColors() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return !color.NoColor
}

// NewPrinter creates a printer writing to out and err.
func NewPrinter(out, err io.Writer, useColors bool) *Printer {
	return &Printer{
		out:       out,
		err:       err,
		useColors: useColors,
	}
}

// Out returns the writer for regular output.
func (p *Printer) Out() io.Writer {
	return p.out
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
	}
}

// Info prints an informational message
func (p *Printer) Info(format string, args ...any) {
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
	} else {
		fmt.Fprintf(p.out, format+"\n", args...)
	}
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.err, "[WARN] "+format+"\n", args...)
	}
}

// Print prints a plain message
func (p *Printer) Print(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Header prints a section header
func (p *Printer) Header(title string) {
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		color.New(color.FgWhite).Fprintf(p.out, "%s\n", strings.Repeat("─", len(title)))
	} else {
		fmt.Fprintf(p.out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
	}
}

// Field prints a label/value pair
func (p *Printer) Field(label string, value any) {
	fmt.Fprintf(p.out, "%-16s %v\n", p.Dim(label+":"), value)
}

// StatusBadge renders a payment status. Pending requests are shown as UNPAID.
func (p *Printer) StatusBadge(status string) string {
	label := status
	if status == "PENDING" {
		label = "UNPAID"
	}
	if !p.useColors {
		return label
	}

	switch status {
	case "PAID":
		return color.GreenString(label)
	case "PENDING":
		return color.YellowString(label)
	case "EXPIRED", "CANCELLED":
		return color.RedString(label)
	default:
		return label
	}
}

// Change renders a signed change figure, green when positive and red when negative.
func (p *Printer) Change(v float64, suffix string) string {
	s := fmt.Sprintf("%+.2f%s", v, suffix)
	if !p.useColors || v == 0 {
		return s
	}
	if v > 0 {
		return color.GreenString(s)
	}
	return color.RedString(s)
}

// Bold returns text in bold
func (p *Printer) Bold(text string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(text)
	}
	return text
}

// Dim returns dimmed text
func (p *Printer) Dim(text string) string {
	if p.useColors {
		return color.New(color.Faint).Sprint(text)
	}
	return text
}
