package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/techoutagebot/audiofeed/internal/feed"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

// Exit statuses; a misconfigured sink will not heal on restart
const (
	exitFailure    = 1
	exitSinkConfig = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if feed.IsFatal(err) {
		return exitSinkConfig
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feedwriter",
		Short: "Keep a named pipe fed with PCM audio for a live encoder",
		Long: `feedwriter writes a continuous raw PCM stream into a named pipe.

Queued clips are played back to back; whenever the queue is empty the
writer fills the stream with real-time paced silence, so the encoder
reading the pipe never starves. Configuration is read from the
environment and an optional .env file.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newEnqueueCmd(),
		newAnnounceCmd(),
		newStatusCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
			},
		},
	)
	return root
}
