package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/wxrelay/wxrelay/internal/config"
	"github.com/wxrelay/wxrelay/internal/store"
	"github.com/wxrelay/wxrelay/internal/store/replydb"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List known chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Storage.BaseDir, newLogger())
			if err != nil {
				return err
			}
			entries := st.Sessions()
			if len(entries) == 0 {
				fmt.Println("no sessions recorded yet")
				return nil
			}
			// Display names are usually CJK; tabwriter counts runes, not
			// cells, so pad with runewidth instead.
			nameW := runewidth.StringWidth("NAME")
			for _, e := range entries {
				if w := runewidth.StringWidth(e.DisplayName); w > nameW {
					nameW = w
				}
			}
			fmt.Printf("%s  %s  %s  %s\n",
				runewidth.FillRight("ID", 16), runewidth.FillRight("SCOPE", 7),
				runewidth.FillRight("NAME", nameW), "KEY")
			for _, e := range entries {
				fmt.Printf("%s  %s  %s  %s\n",
					runewidth.FillRight(e.ID, 16), runewidth.FillRight(e.Scope, 7),
					runewidth.FillRight(e.DisplayName, nameW), e.Key)
			}
			return nil
		},
	}
	cmd.AddCommand(sessionStatsCmd())
	return cmd
}

func sessionStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-session reply counts from the SQLite mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.Storage.ReplyDBPath == "" {
				return fmt.Errorf("storage.reply_db_path is not set")
			}
			db, err := replydb.Open(cfg.Storage.ReplyDBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Stats(context.Background())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("no replies recorded yet")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tREPLIES\tLAST REPLY")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.SessionID, s.Replies, s.LastReply.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}
