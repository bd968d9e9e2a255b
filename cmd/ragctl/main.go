package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/rag-backend/internal/app"
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	"github.com/yungbote/rag-backend/internal/platform/shutdown"
	"github.com/yungbote/rag-backend/internal/services"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the retrieval chat backend from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newIngestCmd(), newAskCmd(), newHistoryCmd())
	return root
}

func withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	application, err := app.New(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				if port == "" {
					port = a.Cfg.Port
				}
				errCh := make(chan error, 1)
				go func() { errCh <- a.Run(":" + port) }()
				select {
				case <-cmd.Context().Done():
					return nil
				case err := <-errCh:
					return err
				}
			})
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (defaults to APP_PORT)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Ingest a PDF into a user's document index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(args[0]))
			if contentType == "" {
				contentType = services.ContentTypePDF
			}
			return withApp(cmd, func(a *app.App) error {
				res, err := a.Services.Documents.Upload(cmd.Context(), userID, filepath.Base(args[0]), contentType, data)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type stdoutSink struct {
	cmd *cobra.Command
}

func (s stdoutSink) Text(delta string) error {
	_, err := fmt.Fprint(s.cmd.OutOrStdout(), delta)
	return err
}

func (s stdoutSink) ToolResult(artifact json.RawMessage) error {
	_, err := fmt.Fprintf(s.cmd.ErrOrStderr(), "[retrieved] %s\n", artifact)
	return err
}

func newAskCmd() *cobra.Command {
	var userID, threadID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run one chat turn and stream the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threadID == "" {
				threadID = uuid.NewString()
			}
			rc := conversation.RunConfig{ThreadID: threadID, UserID: userID, InteractionID: uuid.NewString()}
			return withApp(cmd, func(a *app.App) error {
				if _, err := a.Services.Chat.Invoke(cmd.Context(), rc, args[0], stdoutSink{cmd: cmd}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nthread: %s\n", threadID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id to continue (new thread when empty)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var userID, threadID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's threads, or the messages of one thread",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				if threadID != "" {
					msgs, err := a.Services.Chat.Thread(cmd.Context(), userID, threadID)
					if err != nil {
						return err
					}
					return printJSON(cmd, msgs)
				}
				chats, err := a.Services.Chat.History(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, chats)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
