// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the versioned schema of the local store. Versions
// are strictly additive; opening an older on-device store upgrades it forward,
// there is no backward migration.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
