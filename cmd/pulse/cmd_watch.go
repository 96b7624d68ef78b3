// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/tui"
)

// runWatch runs the live dashboard against a running sentinel. Blocks
// until the user quits.
func runWatch(cmd *cobra.Command, args []string) {
	// The dashboard needs a real terminal; piped output (CI, scripts)
	// should use `pulse stats` instead.
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		log.Fatal("watch needs an interactive terminal; use 'pulse stats' for scripted output")
	}

	if watchInterval < 1 {
		watchInterval = 1
	}
	model := tui.NewModel(newAPIClient(apiBase()), tui.Config{
		RefreshInterval: time.Duration(watchInterval) * time.Second,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Dashboard error: %v", err)
	}
}
