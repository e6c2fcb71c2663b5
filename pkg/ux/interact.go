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
	"context"
	"errors"

	"github.com/charmbracelet/huh"
)

// ErrConfirmationRequired is returned when a confirmation is needed but
// stdin is not a terminal.
var ErrConfirmationRequired = errors.New("confirmation required: rerun with --yes")

// Confirmer asks yes/no questions in the terminal.
type Confirmer struct {
	// AssumeYes answers every question with yes.
	AssumeYes bool

	// Interactive allows prompting. Without it and without AssumeYes
	// every question fails with ErrConfirmationRequired.
	Interactive bool
}

// Confirm asks prompt and reports the answer. Aborting the prompt counts
// as no.
func (c Confirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if c.AssumeYes {
		return true, nil
	}
	if !c.Interactive {
		return false, ErrConfirmationRequired
	}
	var ok bool
	field := huh.NewConfirm().
		Title(prompt).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Notifier prints pipeline notifications.
type Notifier struct {
	P *Printer
}

// Success prints a success notification.
func (n Notifier) Success(msg string) {
	n.P.Success(msg)
}

// Failure prints a failure notification with its cause.
func (n Notifier) Failure(msg string, err error) {
	if err == nil {
		n.P.Error(msg)
		return
	}
	n.P.Error(msg + ": " + err.Error())
}
