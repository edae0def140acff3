package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tphan267/arqut-signal/pkg/models"
	"github.com/tphan267/arqut-signal/pkg/storage"
)

var (
	flagLimit   int
	flagKind    string
	flagSession string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded signaling events from the journal",
	Long: `List recorded signaling events from the journal, newest first.

Examples:
  arqut-signal events
  arqut-signal events --kind offer --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, appLogger, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.NewSQLiteStorage(cfg.DBPath, appLogger)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()

		events, err := store.Events().List(models.EventFilter{
			SessionID: flagSession,
			Kind:      flagKind,
			Limit:     flagLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		renderEvents(os.Stdout, events)
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Maximum number of events to show")
	eventsCmd.Flags().StringVarP(&flagKind, "kind", "k", "", "Only show events of this kind")
	eventsCmd.Flags().StringVar(&flagSession, "session", "", "Only show events of this session")
}

func renderEvents(w io.Writer, events []*models.CallEvent) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Session", "Room", "Kind", "Peer", "Detail"})

	for _, e := range events {
		t.AppendRow(table.Row{
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			shortID(e.SessionID),
			e.Room,
			e.Kind,
			e.PeerID,
			e.Detail,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(events)})
	t.Render()
}

// shortID keeps the first segment of a UUID
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
