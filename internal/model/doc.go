// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the domain types shared by the ALIA client:
// discussions, exchanges, cited sources and local transcript messages.
package model
