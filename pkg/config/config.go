// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads cluster configuration: which storage servers exist,
// which backend kind each one runs, and the tunables that govern pipeline
// splitting and server-side scratch sizing. It is adapted from the
// teacher's viper/env wiring in cmd/file.go: a YAML file provides defaults,
// environment variables prefixed JULEA_ override individual keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BackendKind names a concrete backend implementation selectable per role.
type BackendKind string

const (
	BackendDisk  BackendKind = "disk"
	BackendS3    BackendKind = "s3"
	BackendMemKV BackendKind = "memkv"
	BackendRedis BackendKind = "redis"
)

// DiskConfig configures pkg/backend/disk.
type DiskConfig struct {
	Path string `mapstructure:"path"`
}

// S3Config configures pkg/backend/s3.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// RedisConfig configures pkg/backend/rediskv.
type RedisConfig struct {
	Address string `mapstructure:"address"`
}

// Config is the fully-resolved configuration for either a server process
// or a client process; a server process only needs its own backend
// selection, a client process only needs the server address lists.
type Config struct {
	// ObjectServers and KVServers are addressed by index: index = hash(name)
	// mod len(ObjectServers) (or KVServers) picks the server that owns a
	// given object/key, per the data model's routing rule.
	ObjectServers []string `mapstructure:"object_servers"`
	KVServers     []string `mapstructure:"kv_servers"`

	// MaxOperationSize bounds a single read/write pipeline operation before
	// pkg/object/pkg/chunked split a larger caller request into several.
	// Default chosen to comfortably clear the 768 KiB scratch-overflow test
	// scenario while still forcing splitting on genuinely large writes.
	MaxOperationSize uint32 `mapstructure:"max_operation_size"`

	// StripeSize bounds the server's per-reply scratch region and its
	// write-coalescing merge group size.
	StripeSize uint32 `mapstructure:"stripe_size"`

	// PerHost is the number of connections the client pool leases per
	// server before blocking a caller.
	PerHost int `mapstructure:"per_host"`

	ObjectBackend BackendKind `mapstructure:"object_backend"`
	KVBackend     BackendKind `mapstructure:"kv_backend"`

	Disk  DiskConfig  `mapstructure:"disk"`
	S3    S3Config    `mapstructure:"s3"`
	Redis RedisConfig `mapstructure:"redis"`

	// ListenAddress is the address a server process binds.
	ListenAddress string `mapstructure:"listen_address"`

	// ReadTimeout and WriteTimeout bound how long a server connection may
	// sit idle between bytes before it is dropped; zero disables the
	// deadline-scaling listener wrapper entirely.
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	LogLevel string `mapstructure:"log_level"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("max_operation_size", 8<<20)
	v.SetDefault("stripe_size", 1<<20)
	v.SetDefault("per_host", 4)
	v.SetDefault("object_backend", string(BackendDisk))
	v.SetDefault("kv_backend", string(BackendMemKV))
	v.SetDefault("disk.path", "./data")
	v.SetDefault("listen_address", "0.0.0.0:9876")
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
}

// Load reads configuration from path (if non-empty) and layers JULEA_*
// environment variables on top, the same precedence order the teacher's
// file server CLI uses.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("JULEA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
