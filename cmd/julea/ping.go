// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping <name>",
	Short: "Round-trip a PING against the server that would own <name>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		start := time.Now()
		if err := c.Ping(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("pong in %s\n", time.Since(start))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
