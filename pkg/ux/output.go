// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders mobility results for the terminal.
//
// Output is styled with lipgloss when the destination is a terminal and
// plain text otherwise, so piping `mobility run` into a file or another
// tool yields no escape sequences.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Bar       lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Bar:       lipgloss.NewStyle().Foreground(ColorTealDeep),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// plainIcons replaces icons when styling is off.
var plainIcons = map[Icon]string{
	IconSuccess: "OK",
	IconWarning: "WARN",
	IconError:   "FAIL",
	IconBullet:  "-",
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes styled or plain output to one destination.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter styles output only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styled: IsTerminal(w)}
}

// NewPlainPrinter never styles output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Styled reports whether output carries lipgloss styling.
func (p *Printer) Styled() bool {
	return p.styled
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if !p.styled {
		return plainIcons[i]
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// Title prints a title line.
func (p *Printer) Title(text string) {
	p.printf("%s\n", p.render(Styles.Title, text))
}

// Section prints a section heading preceded by a blank line.
func (p *Printer) Section(text string) {
	p.printf("\n%s\n", p.render(Styles.Subtitle, text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	p.printf("%s %s\n", p.icon(IconSuccess), p.render(Styles.Success, text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	p.printf("%s %s\n", p.icon(IconWarning), p.render(Styles.Warning, text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	p.printf("%s %s\n", p.icon(IconError), p.render(Styles.Error, text))
}

// Info prints an indented informational line.
func (p *Printer) Info(text string) {
	p.printf("  %s\n", text)
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key, value string) {
	p.printf("  %s %s\n", p.render(Styles.Muted, fmt.Sprintf("%-18s", key+":")), value)
}

// Box prints content in a rounded box, or as a titled block when plain.
func (p *Printer) Box(title, content string) {
	if !p.styled {
		p.printf("%s\n%s\n", title, content)
		return
	}
	p.printf("%s\n", Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Bar returns a horizontal bar of width cells proportional to value/peak.
// A positive value always gets at least one cell.
func (p *Printer) Bar(value, peak float64, width int) string {
	if peak <= 0 || value <= 0 || width <= 0 {
		return ""
	}
	n := int(value / peak * float64(width))
	if n < 1 {
		n = 1
	}
	if n > width {
		n = width
	}
	if !p.styled {
		return strings.Repeat("#", n)
	}
	return Styles.Bar.Render(strings.Repeat("█", n))
}
