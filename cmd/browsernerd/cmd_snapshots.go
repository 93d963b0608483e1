package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"browsernerd/internal/sampler"
	"browsernerd/internal/snapshot"
	"browsernerd/internal/tools"
)

var (
	snapshotsClear bool
	snapshotsStats bool
	showSelector   string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List the stored snapshots of the session",
	Long: `Reads the snapshot store only; no browser is needed.

--stats counts snapshots across all sessions and --clear drops every
snapshot of the session.`,
	Args: cobra.NoArgs,
	RunE: runSnapshots,
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Print a stored snapshot, optionally narrowed by a CSS selector",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsShow,
}

func init() {
	snapshotsCmd.Flags().BoolVar(&snapshotsClear, "clear", false, "Remove every snapshot of the session")
	snapshotsCmd.Flags().BoolVar(&snapshotsStats, "stats", false, "Count snapshots across sessions")
	snapshotsShowCmd.Flags().StringVar(&showSelector, "selector", "", "Print only the first matching subtree of the compressed HTML")
	snapshotsCmd.AddCommand(snapshotsShowCmd)
}

func withStore(fn func(store snapshot.Store) error) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close snapshot store", zap.Error(err))
		}
	}()
	return fn(store)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	return withStore(func(store snapshot.Store) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		switch {
		case snapshotsClear:
			if err := store.Clear(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleared snapshots of session %s\n", sessionID)
			return nil
		case snapshotsStats:
			st, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Sessions: %d\nSnapshots: %d\n", st.Sessions, st.Snapshots)
			return nil
		}

		snaps, err := store.List(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Fprintf(out, "No snapshots stored for session %s.\n", sessionID)
			return nil
		}
		t := newSimpleTable(fmt.Sprintf("Snapshots of session %s", sessionID), "ID", "CREATED", "ELEMENTS", "TOKENS", "URL")
		for _, s := range snaps {
			t.addRow(s.ID, s.CreatedAt.UTC().Format(time.RFC3339),
				strconv.Itoa(s.Meta.ElementCount), strconv.Itoa(s.Meta.TokenCount), s.URL)
		}
		_, err = fmt.Fprint(out, t.view())
		return err
	})
}

func runSnapshotsShow(cmd *cobra.Command, args []string) error {
	return withStore(func(store snapshot.Store) error {
		snap, err := store.Get(cmd.Context(), sessionID, args[0])
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("%w: snapshot %s is not stored for session %s", snapshot.ErrStaleReference, args[0], sessionID)
		}
		if showSelector == "" {
			fmt.Fprintln(cmd.OutOrStdout(), tools.FormatSnapshot(snap))
			return nil
		}

		scoped, err := sampler.SelectScope(snap.HTML, showSelector)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), scoped)
		return nil
	})
}
