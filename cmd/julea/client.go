// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/julea-io/julea-go/pkg/batch"
	"github.com/julea-io/julea-go/pkg/client"
	"github.com/julea-io/julea-go/pkg/config"
	"github.com/julea-io/julea-go/pkg/transform"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Exercise a transformation object against a configured cluster",
}

var (
	flagNamespace   string
	flagTransform   string
	flagServerMode  bool
)

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.PersistentFlags().StringVar(&flagNamespace, "namespace", "default", "object namespace")
	clientCmd.PersistentFlags().StringVar(&flagTransform, "transform", "none", "transformation: none|xor|rle|lz4")
	clientCmd.PersistentFlags().BoolVar(&flagServerMode, "server-mode", false, "apply the transformation on the server instead of the client")

	clientCmd.AddCommand(clientPutCmd, clientGetCmd, clientStatCmd, clientRmCmd)
}

func parseTransform(s string) (transform.Type, error) {
	switch s {
	case "none":
		return transform.None, nil
	case "xor":
		return transform.XOR, nil
	case "rle":
		return transform.RLE, nil
	case "lz4":
		return transform.LZ4, nil
	default:
		return 0, fmt.Errorf("unknown transform %q", s)
	}
}

func newClient() (*client.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return client.New(cfg, nil, nil), nil
}

var clientPutCmd = &cobra.Command{
	Use:   "put <name>",
	Short: "Create an object and write stdin to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseTransform(flagTransform)
		if err != nil {
			return err
		}
		mode := transform.ModeClient
		if flagServerMode {
			mode = transform.ModeServer
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		obj, err := c.Object(flagNamespace, args[0])
		if err != nil {
			return err
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b := batch.New(batch.SafetyStorage)
		obj.Create(b, typ, mode)
		if err := b.Execute(ctx); err != nil {
			return err
		}

		b = batch.New(batch.SafetyStorage)
		res := obj.Write(b, data, 0)
		if err := b.Execute(ctx); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", humanize.Bytes(uint64(res.N())))
		return nil
	},
}

var clientGetCmd = &cobra.Command{
	Use:   "get <name> <size>",
	Short: "Read size bytes from offset 0 and print them to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var size int64
		if _, err := fmt.Sscanf(args[1], "%d", &size); err != nil {
			return fmt.Errorf("invalid size: %w", err)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		obj, err := c.Object(flagNamespace, args[0])
		if err != nil {
			return err
		}

		buf := make([]byte, size)
		b := batch.New(batch.SafetyNone)
		res := obj.Read(b, buf, 0)
		if err := b.Execute(cmd.Context()); err != nil {
			return err
		}
		_, err = os.Stdout.Write(buf[:res.N()])
		return err
	},
}

var clientStatCmd = &cobra.Command{
	Use:   "stat <name>",
	Short: "Print an object's transformation, size and modification time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		obj, err := c.Object(flagNamespace, args[0])
		if err != nil {
			return err
		}

		b := batch.New(batch.SafetyNone)
		res := obj.Status(b)
		if err := b.Execute(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("type=%s mode=%s size=%s mtime=%s\n",
			res.Type, res.Mode, humanize.Bytes(uint64(res.OriginalSize)), res.ModTime)
		return nil
	},
}

var clientRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		obj, err := c.Object(flagNamespace, args[0])
		if err != nil {
			return err
		}

		b := batch.New(batch.SafetyStorage)
		obj.Delete(b)
		return b.Execute(cmd.Context())
	},
}
