// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders badctl output for terminals and scripts.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Designer color palette.
var (
	ColorCortex   = lipgloss.Color("#C792EA") // titles, highlights
	ColorSynapse  = lipgloss.Color("#82AAFF") // subtitles, group names
	ColorWhite    = lipgloss.Color("#A6ACCD") // secondary text
	ColorGrey     = lipgloss.Color("#676E95") // muted text, borders
	ColorSuccess  = lipgloss.Color("#C3E88D")
	ColorWarning  = lipgloss.Color("#FFCB6B")
	ColorError    = lipgloss.Color("#F07178")
	ColorProgress = lipgloss.Color("#89DDFF")
)

// Styles are the pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Key       lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorCortex),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSynapse),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorGrey),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorCortex).Bold(true),
	Key:       lipgloss.NewStyle().Foreground(ColorWhite),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorGrey).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconRunning Icon = "◐"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconFolder  Icon = "▸"
	IconEdit    Icon = "✎"
)

func (i Icon) style() lipgloss.Style {
	switch i {
	case IconSuccess:
		return Styles.Success
	case IconWarning:
		return Styles.Warning
	case IconError:
		return Styles.Error
	case IconRunning:
		return lipgloss.NewStyle().Foreground(ColorProgress)
	default:
		return Styles.Muted
	}
}

// Printer writes styled output.
//
// # Description
//
// Regular output goes to Out, warnings and errors to Err. Styles are only
// applied in ModeRich; ModeMachine drops decoration and prints
// prefix-tagged lines.
type Printer struct {
	Out  io.Writer
	Err  io.Writer
	Mode Mode
}

// NewPrinter creates a printer. A nil err writer means out.
func NewPrinter(out, err io.Writer, mode Mode) *Printer {
	if err == nil {
		err = out
	}
	return &Printer{Out: out, Err: err, Mode: mode}
}

// Style renders text with s in ModeRich and returns it unchanged
// otherwise.
func (p *Printer) Style(s lipgloss.Style, text string) string {
	if p.Mode != ModeRich {
		return text
	}
	return s.Render(text)
}

// Icon renders an icon for the printer's mode.
func (p *Printer) Icon(i Icon) string {
	return p.Style(i.style(), string(i))
}

// Title prints a title line. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.Mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.Out, p.Style(Styles.Title, text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", p.Icon(IconSuccess), p.Style(Styles.Success, text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.Err, "%s %s\n", p.Icon(IconWarning), p.Style(Styles.Warning, text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.Err, "%s %s\n", p.Icon(IconError), p.Style(Styles.Error, text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", p.Style(Styles.Muted, "│"), text)
}

// Muted prints secondary text. Machine mode prints nothing.
func (p *Printer) Muted(text string) {
	if p.Mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.Out, p.Style(Styles.Muted, text))
}

// KeyValue prints an aligned "key  value" line, or "key\tvalue" in
// machine mode.
func (p *Printer) KeyValue(key string, value any) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Out, "%s\t%v\n", key, value)
		return
	}
	fmt.Fprintf(p.Out, "%s %v\n", p.Style(Styles.Key, fmt.Sprintf("%-14s", key)), value)
}

// Box prints content in a rounded box.
func (p *Printer) Box(title, content string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Out, "%s: %s\n", title, content)
	case ModePlain:
		fmt.Fprintf(p.Out, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.Out, Styles.Box.Width(64).Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// ErrorBox prints a failure with its detail in a red box.
func (p *Printer) ErrorBox(title, content string) {
	if p.Mode != ModeRich {
		p.Error(title + ": " + content)
		return
	}
	fmt.Fprintln(p.Err, Styles.ErrorBox.Width(64).Render(Styles.Error.Bold(true).Render(title)+"\n"+content))
}

// ProgressBar renders a bar of width cells for done out of all.
func (p *Printer) ProgressBar(done, all, width int) string {
	if p.Mode == ModeMachine || all <= 0 {
		return fmt.Sprintf("%d/%d", done, all)
	}
	pct := float64(done) / float64(all)
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	bar := p.Style(lipgloss.NewStyle().Foreground(ColorProgress), strings.Repeat("█", filled)) +
		p.Style(Styles.Muted, strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
