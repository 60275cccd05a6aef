// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides cmd/encr's terminal presentation helpers: TTY-aware
// colored headers and labels, mirroring cmd/cie's internal/ui surface
// (ui.Header/ui.Label/ui.DimText/ui.Green, ...).
package ui

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Color handles reused across cmd/encr's output.
var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.Faint)
	Bold   = color.New(color.Bold)
)

// InitColors disables color output when noColor is set, stdout is not a
// terminal, or NO_COLOR is present in the environment — the same three
// checks cmd/cie/main.go runs before dispatching to a subcommand.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(title string) {
	_, _ = Bold.Printf("== %s ==\n", title)
}

// SubHeader prints a lighter-weight section title, nested under a Header.
func SubHeader(title string) {
	_, _ = Bold.Printf("-- %s --\n", title)
}

// Label formats a field name for a "Label: value" line.
func Label(s string) string {
	return Dim.Sprint(s)
}

// DimText renders s in the faint color, for secondary detail.
func DimText(s string) string {
	return Dim.Sprint(s)
}

// CountText renders an integer count in bold.
func CountText(n int) string {
	return Bold.Sprint(strconv.Itoa(n))
}

// PrintError prints a one-line error message in red, matching the style
// FatalError falls back to for a plain (non-Detailed) error.
func PrintError(err error) {
	_, _ = Red.Fprintf(os.Stderr, "Error: %s\n", fmt.Sprint(err))
}
