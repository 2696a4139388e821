package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ashureev/fitmind/internal/config"
	"github.com/ashureev/fitmind/internal/domain"
	"github.com/ashureev/fitmind/internal/store"
	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript <conversation-id>",
	Short: "Print a stored conversation",
	Long: `Print the messages and recommendation state of a stored conversation.
Only signed-in users' conversations are stored; guest chats are never written.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscript,
}

func runTranscript(cmd *cobra.Command, args []string) error {
	repo, err := store.NewSQLite(config.DBPathFromEnv())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = repo.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	conv, err := repo.GetConversation(ctx, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("conversation %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	writeTranscript(cmd.OutOrStdout(), conv)
	return nil
}

func writeTranscript(w io.Writer, conv *domain.Conversation) {
	fmt.Fprintf(w, "Conversation %s (%s)\n", conv.ID, conv.Title)
	fmt.Fprintf(w, "User:        %s\n", conv.UserID)
	fmt.Fprintf(w, "Turns:       %d\n", conv.TurnCount)
	if conv.Goal != "" {
		fmt.Fprintf(w, "Goal:        %s\n", conv.Goal)
	}
	fmt.Fprintf(w, "Shown:       %t (visible %t, consent pending %t)\n",
		conv.RecommendationShown, conv.RecommendationVisible, conv.ConsentPending)
	fmt.Fprintln(w)

	for _, m := range conv.Messages {
		marker := ""
		if m.Signaled {
			marker = " [offer]"
		}
		fmt.Fprintf(w, "[%s] %-9s %s%s\n", m.CreatedAt.Format(time.RFC3339), m.Role()+":", m.Text, marker)
	}
}
