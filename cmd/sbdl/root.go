package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for sbdl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sbdl",
		Short: "Soundboard crawler and resumable MP3 downloader",
		Long: `sbdl walks the soundboard categories of realmofdarkness.net and downloads
the sounds of every soundboard into sounds/<soundboard name>/<sound>.mp3.

Sounds that already exist on disk are skipped, so running the same command
again only fetches what is missing.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-file", "", "Append JSON log records to this file")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
