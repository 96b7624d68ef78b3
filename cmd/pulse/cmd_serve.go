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
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPulse/services/sentinel"
)

// runServe constructs and runs the sentinel in-process. Blocks until the
// HTTP server exits.
func runServe(cmd *cobra.Command, args []string) {
	svc, err := sentinel.New(cfg, &sentinel.Options{ConfigPath: cfgPath})
	if err != nil {
		log.Fatalf("Failed to create sentinel: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("Sentinel error: %v", err)
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("pulse %s\n", sentinel.Version)
}
