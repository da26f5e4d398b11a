// Command anidb is a thin wrapper around the identification and sync
// libraries (spec.md §4.9, §4.10). It owns none of their algorithms;
// it only dials a protocol/transport.Connection, wires a
// protocol/query.QueryManager on top, and hands that to
// identification.Service / internal/sync.Engine. Command dispatch and
// config-file loading, the spec's named external collaborators, stay
// minimal here on purpose.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("anidb: command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
