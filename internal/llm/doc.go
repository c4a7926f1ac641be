// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm consumes the ALIA generation endpoint: it opens the response
// byte stream, splits it at the [END_GENERATION] sentinel into a
// live-updating answer and a trailing JSON source list, and reports partial
// answers as they arrive.
//
// The stream reader is parameterized by a ResponseSource capability, so the
// real HTTP endpoint and the fixed-delay synthetic generator share one
// parser.
package llm
