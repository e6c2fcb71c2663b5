// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how rich the terminal output is.
type Mode int

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = iota

	// ModePlain uses icons without any styling.
	ModePlain

	// ModeMachine prints tab separated lines for scripts.
	ModeMachine
)

// String returns the flag value of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRich:
		return "rich"
	case ModePlain:
		return "plain"
	case ModeMachine:
		return "machine"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a flag value. The empty string and "auto" detect the
// mode from the terminal.
func ParseMode(s string, out *os.File) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DetectMode(out), nil
	case "rich":
		return ModeRich, nil
	case "plain":
		return ModePlain, nil
	case "machine":
		return ModeMachine, nil
	}
	return ModePlain, fmt.Errorf("unknown output mode %q (want auto, rich, plain or machine)", s)
}

// DetectMode returns ModeRich for a terminal and ModePlain otherwise.
// NO_COLOR forces plain output.
func DetectMode(out *os.File) Mode {
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(out) {
		return ModePlain
	}
	return ModeRich
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
