// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // Cyan
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")). // Purple
			Bold(true)

	// Secondary information (hints, timestamps)
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// Interactive command names in help output
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // Emerald

	// Warnings and cancellations
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")) // Amber

	// Errors shown in the transcript
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	// Source list headers
	sourceHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	// Speaker labels in the transcript
	userLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
	botLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)
)
