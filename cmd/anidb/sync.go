package main

import (
	"context"
	"fmt"

	"github.com/anidbgo/anidbclient/internal/sync/syncentry"
	"github.com/spf13/cobra"
)

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var (
		addFID    uint64
		addED2K   string
		addSize   uint64
		deleteLID uint64
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the MyList sync queue (spec.md §4.10)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultOpTimeout)
			defer cancel()

			_, qm, closeConn, err := flags.dial()
			if err != nil {
				return err
			}
			defer closeConn()

			repo := newMemSyncQueue()
			switch {
			case deleteLID != 0:
				if _, err := repo.Enqueue(ctx, syncentry.Entry{LID: deleteLID, Operation: syncentry.OpDelete}); err != nil {
					return err
				}
			case addFID != 0 || addED2K != "":
				if _, err := repo.Enqueue(ctx, syncentry.Entry{FileID: addFID, ED2K: addED2K, Size: addSize, Operation: syncentry.OpAdd}); err != nil {
					return err
				}
			}

			engine := newSyncEngine(qm, repo)
			summary, err := engine.ProcessOnce(ctx)
			if err != nil {
				return fmt.Errorf("anidb sync: %w", err)
			}

			fmt.Printf("processed: %d\ncompleted: %d\nretried: %d\ndead-lettered: %d\n",
				summary.Processed, summary.Completed, summary.Retried, summary.DeadLettered)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&addFID, "add-fid", 0, "queue a MYLISTADD for this AniDB file ID")
	cmd.Flags().StringVar(&addED2K, "add-ed2k", "", "queue a MYLISTADD by ED2K hash")
	cmd.Flags().Uint64Var(&addSize, "add-size", 0, "file size in bytes, used with --add-ed2k")
	cmd.Flags().Uint64Var(&deleteLID, "delete-lid", 0, "queue a MYLISTDEL for this MyList entry ID")
	return cmd
}
