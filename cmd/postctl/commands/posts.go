package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/blackmichael/postboard/cmd/postctl/output"
	"github.com/blackmichael/postboard/internal/client"
	"github.com/spf13/cobra"
)

func newPostsCmd(opts *globalOptions) *cobra.Command {
	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "Manage posts",
	}

	postsCmd.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newCreateCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
	)
	return postsCmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			posts, err := opts.client().ListPosts(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(w, posts)
			}
			if len(posts) == 0 {
				output.Muted(w, "No posts yet.")
				return nil
			}

			rows := make([][]string, len(posts))
			for i, p := range posts {
				rows[i] = []string{output.ID(p.ID), p.Title, p.ImageURL}
			}
			output.Table(w, []string{"ID", "TITLE", "IMAGE"}, rows)
			return nil
		},
	}
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			post, err := opts.client().GetPost(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printPost(cmd.OutOrStdout(), opts, post)
		},
	}
}

// postFlags are the field flags shared by create and update.
type postFlags struct {
	title       string
	description string
	image       string
}

func (f *postFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Post title")
	cmd.Flags().StringVar(&f.description, "description", "", "Post description")
	cmd.Flags().StringVar(&f.image, "image", "", "Path to an image file to upload")
}

// input builds a PostInput from the flags that were set. The returned closer
// releases the image file, if any.
func (f *postFlags) input(cmd *cobra.Command) (client.PostInput, func(), error) {
	var in client.PostInput
	if cmd.Flags().Changed("title") {
		in.Title = &f.title
	}
	if cmd.Flags().Changed("description") {
		in.Description = &f.description
	}
	if f.image == "" {
		return in, func() {}, nil
	}

	file, err := os.Open(f.image)
	if err != nil {
		return in, nil, fmt.Errorf("open image: %w", err)
	}
	in.Image = &client.Image{Filename: filepath.Base(f.image), Content: file}
	return in, func() { file.Close() }, nil
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var flags postFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a post",
		Long: `Create a post, optionally uploading an image.

Examples:
  postctl posts create --title "Hello"
  postctl posts create --title "Trip" --description "Day one" --image ./photo.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeImage, err := flags.input(cmd)
			if err != nil {
				return err
			}
			defer closeImage()

			post, err := opts.client().CreatePost(cmd.Context(), in)
			if err != nil {
				return err
			}
			if !opts.jsonOutput {
				output.Success(cmd.OutOrStdout(), "Created post %s", output.ID(post.ID))
			}
			return printPost(cmd.OutOrStdout(), opts, post)
		},
	}
	flags.register(cmd)
	cmd.MarkFlagRequired("title")
	return cmd
}

func newUpdateCmd(opts *globalOptions) *cobra.Command {
	var flags postFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update the given fields of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			in, closeImage, err := flags.input(cmd)
			if err != nil {
				return err
			}
			defer closeImage()

			if in.Title == nil && in.Description == nil && in.Image == nil {
				return fmt.Errorf("nothing to update: set --title, --description or --image")
			}

			post, err := opts.client().UpdatePost(cmd.Context(), id, in)
			if err != nil {
				return err
			}
			if !opts.jsonOutput {
				output.Success(cmd.OutOrStdout(), "Updated post %s", output.ID(post.ID))
			}
			return printPost(cmd.OutOrStdout(), opts, post)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post (requires --token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if opts.token == "" {
				return fmt.Errorf("--token is required (or set POSTBOARD_TOKEN)")
			}

			if err := opts.client().DeletePost(cmd.Context(), id); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "Deleted post %s", output.ID(id))
			return nil
		},
	}
}

func printPost(w io.Writer, opts *globalOptions, post *client.Post) error {
	if opts.jsonOutput {
		return writeJSON(w, post)
	}
	output.Field(w, "ID", strconv.FormatInt(post.ID, 10))
	output.Field(w, "Title", post.Title)
	output.Field(w, "Description", post.Description)
	image := post.ImageURL
	if image != "" {
		image = opts.server + "/" + image
	}
	output.Field(w, "Image", image)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid post id %q", s)
	}
	return id, nil
}
