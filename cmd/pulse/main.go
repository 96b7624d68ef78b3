// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pulse is the operator CLI for the sentinel service.
//
// `pulse serve` runs the service itself; every other command talks to a
// running instance over its HTTP API. Configuration comes from --config
// (YAML), PULSE_* environment variables, and embedded defaults, in that
// order of precedence.
package main

import (
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
)

var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		cfg = loaded
	}
}

// apiBase returns the server URL targeted by client commands: the --api
// flag when set, otherwise the configured listen address with localhost
// filled in for bare ports.
func apiBase() string {
	if apiURL != "" {
		return strings.TrimRight(apiURL, "/")
	}
	addr := cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
