// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/julea-io/julea-go/pkg/logger"
)

func main() {
	if dsn := os.Getenv("JULEA_SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			logger.Warn().Err(err).Msg("sentry init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
			defer sentry.Recover()
		}
	}

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("julea: command failed")
	}
}
