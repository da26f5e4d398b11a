package main

import (
	"fmt"
	"net"
	"time"

	"github.com/anidbgo/anidbclient/identification"
	syncengine "github.com/anidbgo/anidbclient/internal/sync"
	"github.com/anidbgo/anidbclient/internal/strategy"
	"github.com/anidbgo/anidbclient/protocol/client"
	"github.com/anidbgo/anidbclient/protocol/query"
	"github.com/anidbgo/anidbclient/protocol/transport"
	"github.com/spf13/cobra"
)

// globalFlags mirrors the connection/credential parameters every
// subcommand needs; cobra's PersistentFlags keep them out of each leaf
// command's own flag set.
type globalFlags struct {
	host          string
	port          int
	username      string
	password      string
	clientName    string
	clientVersion int
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "anidb",
		Short:         "Query and maintain an AniDB MyList over the UDP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.host, "host", "api.anidb.net", "AniDB UDP API host")
	pf.IntVar(&flags.port, "port", 9000, "AniDB UDP API port")
	pf.StringVar(&flags.username, "user", "", "AniDB username")
	pf.StringVar(&flags.password, "pass", "", "AniDB password")
	pf.StringVar(&flags.clientName, "client", "anidbgo", "registered AniDB client name")
	pf.IntVar(&flags.clientVersion, "clientver", 1, "registered AniDB client version")

	root.AddCommand(newIdentifyCmd(flags))
	root.AddCommand(newSyncCmd(flags))
	return root
}

// dial opens the UDP transport and layers a Connection + QueryManager
// on top (spec §4.7, §4.8); callers own calling Close when done.
func (f *globalFlags) dial() (*transport.Connection, *query.QueryManager, func() error, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", f.host, f.port))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("anidb: resolve %s:%d: %w", f.host, f.port, err)
	}

	tr, err := transport.Dial(transport.Config{ServerAddr: addr})
	if err != nil {
		return nil, nil, nil, err
	}

	conn := transport.NewConnection(tr)
	if err := conn.Connect(); err != nil {
		tr.Close()
		return nil, nil, nil, err
	}

	sender := client.New(conn)
	qm := query.New(conn, sender, query.Credentials{
		Username:      f.username,
		Password:      f.password,
		ClientName:    f.clientName,
		ClientVersion: f.clientVersion,
	}, query.DefaultMaxRetries)

	return conn, qm, tr.Close, nil
}

// newIdentificationService wires a Service against a live sender, an
// in-memory file cache, and no offline queue (a standalone CLI run has
// nowhere durable to persist one; an embedder wiring cache.FileCache
// and a real identification.OfflineQueue would replace memFileCache
// with its own relational store, per spec §6.3).
func newIdentificationService(qm *query.QueryManager) *identification.Service {
	return identification.New(strategy.NewSelector(), qm, nil, newMemFileCache(), nil, identification.DefaultServiceConfig())
}

func newSyncEngine(qm *query.QueryManager, repo *memSyncQueue) *syncengine.Engine {
	return syncengine.New(repo, qm, syncengine.DefaultConfig())
}

const defaultOpTimeout = 30 * time.Second
