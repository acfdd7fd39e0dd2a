// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/julea-io/julea-go/pkg/batch"
	"github.com/julea-io/julea-go/pkg/transform"
)

var (
	benchCount     int
	benchSize      int
	benchNamespace string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive N create+write+read+delete batches against a cluster",
	RunE:  runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVar(&benchCount, "count", 100, "number of objects to exercise")
	benchCmd.Flags().IntVar(&benchSize, "size", 4096, "payload size per object")
	benchCmd.Flags().StringVar(&benchNamespace, "namespace", "bench", "namespace to use")
}

func runBench(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	payload := make([]byte, benchSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	start := time.Now()
	var totalBytes int64
	for i := 0; i < benchCount; i++ {
		name := fmt.Sprintf("bench-%d", i)
		obj, err := c.Object(benchNamespace, name)
		if err != nil {
			return err
		}

		b := batch.New(batch.SafetyStorage)
		obj.Create(b, transform.None, transform.ModeClient)
		if err := b.Execute(ctx); err != nil {
			return err
		}

		b = batch.New(batch.SafetyStorage)
		wr := obj.Write(b, payload, 0)
		if err := b.Execute(ctx); err != nil {
			return err
		}
		totalBytes += wr.N()

		buf := make([]byte, benchSize)
		b = batch.New(batch.SafetyNone)
		obj.Read(b, buf, 0)
		if err := b.Execute(ctx); err != nil {
			return err
		}

		b = batch.New(batch.SafetyStorage)
		obj.Delete(b)
		if err := b.Execute(ctx); err != nil {
			return err
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("%d objects, %s written, in %s (%s/s)\n",
		benchCount, humanize.Bytes(uint64(totalBytes)), elapsed,
		humanize.Bytes(uint64(float64(totalBytes)/elapsed.Seconds())))
	return nil
}
