// Datum Sync - account synchronization client for Datum Cloud.
package main

import (
	"os"

	"github.com/datumcloud/datum-sync/internal/cli"
	"github.com/datumcloud/datum-sync/internal/version"
)

func main() {
	// Propagate version from the single source of truth (internal/version).
	cli.Version = version.Version
	cli.BuildTime = version.BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
