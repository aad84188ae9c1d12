package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/techoutagebot/audiofeed/internal/api"
	"github.com/techoutagebot/audiofeed/internal/config"
)

func addServerFlag(cmd *cobra.Command, server *string) {
	defaultURL := "http://localhost:" + config.GetEnv("PORT", "8080")
	cmd.Flags().StringVarP(server, "server", "s", defaultURL, "feed server base URL")
}

func newEnqueueCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "enqueue PATH...",
		Short: "Queue raw PCM clips on a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(server)
			for _, path := range args {
				// The server resolves paths against its own working directory
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				resp, err := client.EnqueueClip(cmd.Context(), abs)
				if err != nil {
					return fmt.Errorf("enqueue %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tqueue=%d\n",
					resp.ID, resp.Path, humanize.Bytes(uint64(resp.Size)), resp.QueueLength)
			}
			return nil
		},
	}
	addServerFlag(cmd, &server)
	return cmd
}

func newAnnounceCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "announce TEXT...",
		Short: "Synthesize speech and queue it on a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := api.NewClient(server).Announce(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tqueue=%d\n",
				resp.ID, humanize.Bytes(uint64(resp.Size)), resp.QueueLength)
			return nil
		},
	}
	addServerFlag(cmd, &server)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var server string
	var showQueue bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the writer state of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(server)
			s, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session:    %s\n", s.SessionID)
			state := s.State
			if !s.Running {
				state += " (writer stopped)"
			}
			fmt.Fprintf(out, "state:      %s\n", state)
			fmt.Fprintf(out, "format:     %s\n", s.Format)
			fmt.Fprintf(out, "queued:     %d\n", s.QueueLength)
			fmt.Fprintf(out, "played:     %d (dropped %d)\n", s.ClipsPlayed, s.ClipsDropped)
			fmt.Fprintf(out, "reconnects: %d\n", s.Reconnects)
			fmt.Fprintf(out, "written:    %s clips, %s silence\n",
				humanize.Bytes(uint64(s.ClipBytes)), humanize.Bytes(uint64(s.SilenceBytes)))

			if !showQueue {
				return nil
			}
			q, err := client.Queue(cmd.Context())
			if err != nil {
				return err
			}
			for i, c := range q.Clips {
				fmt.Fprintf(out, "%3d  %s\t%s\t%s\t%s\n", i+1, c.ID, c.Source,
					time.Duration(c.DurationMs)*time.Millisecond, c.Path)
			}
			return nil
		},
	}
	addServerFlag(cmd, &server)
	cmd.Flags().BoolVarP(&showQueue, "queue", "q", false, "also list the clips waiting to play")
	return cmd
}
