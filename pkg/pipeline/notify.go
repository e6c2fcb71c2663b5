// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/brainage/bad-designer/pkg/logging"
)

// User facing acknowledgements.
const (
	MsgStored  = "pipeline stored"
	MsgQueued  = "pipeline queued"
	MsgStopped = "pipeline stopped"
	MsgCopied  = "pipeline copied"
	MsgDeleted = "pipeline deleted"
	MsgCreated = "pipeline created"
)

// DeletePrompt is the confirmation asked before a pipeline is deleted.
const DeletePrompt = "Delete this pipeline?"

// PreviewFallback is the inline error of a failed source preview when the
// server gives no message.
const PreviewFallback = "something went wrong fetching the files"

// Notifier shows transient, dismissible messages.
type Notifier interface {
	Success(msg string)
	Failure(msg string, err error)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *logging.Logger
}

// Success logs msg at info level.
func (n LogNotifier) Success(msg string) {
	n.Logger.Info(msg)
}

// Failure logs msg and err at error level.
func (n LogNotifier) Failure(msg string, err error) {
	n.Logger.Error(msg, "error", err)
}

// Navigator moves the presentation layer to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(path string) { f(path) }

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}
