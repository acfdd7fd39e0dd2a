// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "julea",
	Short: "julea drives a transformation-object storage cluster",
	Long: `julea runs a storage server or exercises one as a client:
create, read, write and delete transformation objects, plain or chunked,
against a cluster of storage servers addressed by hashing the object
name.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (JULEA_* env vars always override)")
}
