// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type InsightConfig struct {
	// Server: HTTP listener settings
	Server ServerConfig `yaml:"server"`

	// Cache: result cache storage
	Cache CacheConfig `yaml:"cache"`

	// Execution: query execution bounds
	Execution ExecutionConfig `yaml:"execution"`

	// Logging: structured log output
	Logging LoggingConfig `yaml:"logging"`

	// Translator: natural-language question translation
	Translator TranslatorConfig `yaml:"translator"`
}

type ServerConfig struct {
	Host string `yaml:"host"` // e.g. 0.0.0.0
	Port int    `yaml:"port"` // e.g. 8085
}

type CacheConfig struct {
	// Path is the badger database directory. Ignored when InMemory.
	Path string `yaml:"path"`

	// InMemory keeps cached results in process memory only.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites trades write throughput for durability.
	SyncWrites bool `yaml:"sync_writes"`
}

type ExecutionConfig struct {
	// TimeoutSeconds bounds one dataset store execution.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// HistoryCapacity is the per-context execution history depth.
	HistoryCapacity int `yaml:"history_capacity"`

	// CacheTTLSeconds is the default result cache lifetime.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

type LoggingConfig struct {
	// Level can be "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type TranslatorConfig struct {
	// Enabled wires the OpenAI translator for /ask. Requires
	// OPENAI_API_KEY in the environment or container secrets.
	Enabled bool `yaml:"enabled"`
}

func DefaultConfig() InsightConfig {
	return InsightConfig{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8085,
		},
		Cache: CacheConfig{
			Path:     "~/.aleutian/insight/cache",
			InMemory: false,
		},
		Execution: ExecutionConfig{
			TimeoutSeconds:  30,
			HistoryCapacity: 100,
			CacheTTLSeconds: 3600,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Translator: TranslatorConfig{
			Enabled: false,
		},
	}
}
