package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/biodoia/goleapchain/internal/history"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved agent conversations",
		Long: `Inspect the conversations saved by the conversational agent when
history.enabled is true.`,
		Example: `  # List saved conversations
  goleapchain history list

  # Show one conversation
  goleapchain history show 6f1c...

  # Delete every conversation
  goleapchain history clear --all`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, store *history.Store) error {
				return listSessions(ctx, cmd.OutOrStdout(), store)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid conversation id %q: %w", args[0], err)
			}
			return withHistory(cmd, func(ctx context.Context, store *history.Store) error {
				return showSession(ctx, cmd.OutOrStdout(), store, id)
			})
		},
	})

	var all bool
	clearCmd := &cobra.Command{
		Use:   "clear [id]",
		Short: "Delete one conversation, or all with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("specify either a conversation id or --all")
			}
			return withHistory(cmd, func(ctx context.Context, store *history.Store) error {
				out := cmd.OutOrStdout()
				if all {
					n, err := store.DeleteAll(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "✓ Deleted %d conversations\n", n)
					return nil
				}

				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid conversation id %q: %w", args[0], err)
				}
				if err := store.Clear(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Deleted conversation %s\n", id)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&all, "all", false, "Delete every conversation")
	cmd.AddCommand(clearCmd)

	return cmd
}

// withHistory apre il database dello storico per la durata di fn
func withHistory(cmd *cobra.Command, fn func(ctx context.Context, store *history.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(cmd.Context(), history.NewStore(db))
}

func listSessions(ctx context.Context, out io.Writer, store *history.Store) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved conversations")
		return nil
	}

	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %-8s %3d messages  %s\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Source, s.Messages, s.Title)
	}
	return nil
}

func showSession(ctx context.Context, out io.Writer, store *history.Store, id uuid.UUID) error {
	conv, err := store.Conversation(ctx, id)
	if err != nil {
		return err
	}

	renderer := lipgloss.NewRenderer(out)
	title := renderer.NewStyle().Bold(true)
	speaker := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	fmt.Fprintln(out, title.Render(conv.Title))
	fmt.Fprintf(out, "%s (%s)\n\n", conv.ID, conv.Source)
	for _, msg := range conv.Messages {
		fmt.Fprintf(out, "%s %s\n", speaker.Render(speakerLabel(msg.Type)+":"), msg.Content)
	}
	return nil
}

func speakerLabel(messageType string) string {
	switch llms.ChatMessageType(messageType) {
	case llms.ChatMessageTypeHuman:
		return "User"
	case llms.ChatMessageTypeAI:
		return "Agent"
	case llms.ChatMessageTypeSystem:
		return "System"
	default:
		return messageType
	}
}
