// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const columnGap = 2

// newRenderer returns a lipgloss renderer for w. Without color every
// style renders as plain padded text, which is what pipes and tests
// want.
func newRenderer(w io.Writer, color bool) *lipgloss.Renderer {
	profile := termenv.Ascii
	if color {
		profile = termenv.ANSI256
	}
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return renderer
}

// renderTable lays rows out in left-aligned columns sized to their
// widest cell.
func renderTable(renderer *lipgloss.Renderer, headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return renderer.NewStyle().Faint(true).Render("(none)") + "\n"
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = lipgloss.Width(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var builder strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(widths)-1 {
				builder.WriteString(style.Render(cell))
				break
			}
			builder.WriteString(style.Width(widths[i] + columnGap).Render(cell))
		}
		builder.WriteString("\n")
	}
	writeRow(headers, renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")))
	for _, row := range rows {
		writeRow(row, renderer.NewStyle())
	}
	return builder.String()
}
