// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/julea-io/julea-go/pkg/backend"
	"github.com/julea-io/julea-go/pkg/backend/disk"
	"github.com/julea-io/julea-go/pkg/backend/memkv"
	"github.com/julea-io/julea-go/pkg/backend/rediskv"
	"github.com/julea-io/julea-go/pkg/backend/s3"
	"github.com/julea-io/julea-go/pkg/config"
	"github.com/julea-io/julea-go/pkg/logger"
	"github.com/julea-io/julea-go/pkg/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a storage server",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	objBackend, err := openObjectBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	kvBackend, err := openKVBackend(cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		ObjectBackend: objBackend,
		KVBackend:     kvBackend,
		StripeSize:    int64(cfg.StripeSize),
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", cfg.ListenAddress).Msg("julea server listening")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.Serve(ctx, ln)
}

func openObjectBackend(ctx context.Context, cfg *config.Config) (backend.ObjectBackend, error) {
	switch cfg.ObjectBackend {
	case config.BackendS3:
		return s3.New(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Endpoint)
	case config.BackendDisk:
		return disk.New(cfg.Disk.Path)
	default:
		return nil, fmt.Errorf("server: unknown object backend %q", cfg.ObjectBackend)
	}
}

func openKVBackend(cfg *config.Config) (backend.KVBackend, error) {
	switch cfg.KVBackend {
	case config.BackendRedis:
		return rediskv.New(cfg.Redis.Address)
	case config.BackendMemKV:
		return memkv.New(), nil
	default:
		return nil, fmt.Errorf("server: unknown kv backend %q", cfg.KVBackend)
	}
}
