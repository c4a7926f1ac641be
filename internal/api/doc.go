// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the ALIA REST backend: discussions,
// exchanges ("chats"), cited sources and audio upload.
package api
