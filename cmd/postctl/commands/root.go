// Package commands defines the postctl command tree.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/blackmichael/postboard/internal/client"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server     string
	token      string
	jsonOutput bool
	verbose    bool
}

func (o *globalOptions) client() *client.Client {
	c := client.NewClient(o.server)
	if o.token != "" {
		c.SetToken(o.token)
	}
	return c
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewRootCmd builds the postctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "postctl",
		Short: "postctl - command line client for postboard",
		Long: `postctl manages blog posts on a postboard server through its JSON API.

Features:
  - List, show, create, update and delete posts
  - Upload an image with a post
  - Issue bearer tokens for authenticated actions
  - Follow post changes live`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOrDefault("POSTBOARD_URL", "http://localhost:8080"), "postboard server URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("POSTBOARD_TOKEN"), "Bearer token (required for delete)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newPostsCmd(opts),
		newTokenCmd(),
		newWatchCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
