// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the ALIA client configuration.
//
// Sources, in order of precedence:
//   - environment variables (API_URL, ALIA_LLM_URL, ...)
//   - ~/.alia/config.toml
//   - built-in defaults
//
// A .env file in the working directory is loaded into the environment first
// when present. Validation fails fast at startup with a single error that
// enumerates every missing or invalid key.
package config
