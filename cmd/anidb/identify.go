package main

import (
	"context"
	"fmt"

	"github.com/anidbgo/anidbclient/identification"
	"github.com/spf13/cobra"
)

func newIdentifyCmd(flags *globalFlags) *cobra.Command {
	var (
		ed2k string
		size uint64
		fid  uint64
	)

	cmd := &cobra.Command{
		Use:   "identify [path]",
		Short: "Identify a file against AniDB (spec.md §4.9)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source identification.Source
			switch {
			case fid != 0:
				source = identification.ByFileID(fid)
			case ed2k != "":
				source = identification.HashWithSize(ed2k, size)
			case len(args) == 1:
				source = identification.FilePath(args[0])
			default:
				return fmt.Errorf("anidb identify: pass a file path, --ed2k/--size, or --fid")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultOpTimeout)
			defer cancel()

			_, qm, closeConn, err := flags.dial()
			if err != nil {
				return err
			}
			defer closeConn()

			svc := newIdentificationService(qm)
			result, err := svc.Identify(ctx, identification.Request{Source: source, Options: identification.DefaultOptions()})
			if err != nil {
				return fmt.Errorf("anidb identify: %w", err)
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&ed2k, "ed2k", "", "identify by a precomputed ED2K hash")
	cmd.Flags().Uint64Var(&size, "size", 0, "file size in bytes, required with --ed2k")
	cmd.Flags().Uint64Var(&fid, "fid", 0, "identify directly by AniDB file ID")
	return cmd
}

func printResult(r identification.Result) {
	fmt.Printf("status: %s\n", r.Status)
	if r.File == nil {
		return
	}
	fmt.Printf("fid: %d\naid: %d\neid: %d\ngid: %d\nsize: %d\ned2k: %s\n",
		r.File.FID, r.File.AID, r.File.EID, r.File.GID, r.File.Size, r.File.ED2K)
}
