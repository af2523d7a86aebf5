/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build information.
package version

import "fmt"

// These are set at build time via ldflags:
//
//	-X github.com/daisho-wakazashi/keybook/internal/version.Version=X.Y.Z
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// String renders the version for CLI output.
func String() string {
	return fmt.Sprintf("keybook %s (%s)", Version, Commit)
}
