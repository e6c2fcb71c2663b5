// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command badctl edits, runs and watches BrainAGE pipelines from the
// terminal.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one badctl invocation and returns its exit code.
func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr, os.Getenv)
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.Execute()
	a.close()
	if err != nil {
		var shown reportedError
		if errors.As(err, &shown) {
			return 1
		}
		if a.out != nil {
			a.out.Error(err.Error())
		} else {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// reportedError is an error the user has already been notified of.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// reported marks err as shown by a notifier.
func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}
