package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
)

const (
	defaultChunkSize      = 64
	chatDescriptionLength = 60
)

// sessionFlags selects the conversation a command works on.
type sessionFlags struct {
	chatID string
	label  string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.chatID, "chat", "", "Chat ID (derived from the workspace and --label when empty)")
	cmd.Flags().StringVar(&f.label, "label", "", "Label used to derive the chat ID")
}

func (f sessionFlags) resolve(app *app) string {
	if chatID := strings.TrimSpace(f.chatID); chatID != "" {
		return chatID
	}
	return application.ResolveSessionID(app.cfg.WorkspaceDir, f.label)
}

func newChatCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Apply assistant replies and manage chat history",
	}

	cmd.AddCommand(newChatApplyCmd(app), newChatShowCmd(app))

	return cmd
}

func newChatApplyCmd(app *app) *cobra.Command {
	var session sessionFlags
	var file string
	var prompt string
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Stream an assistant reply, run its actions and save the chat",
		Long:  "apply reads an assistant reply from --file (or stdin with -), streams it through the artifact parser in chunks, runs every file and shell action in the workspace and prints the remaining prose.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if chunkSize <= 0 {
				return errors.New("--chunk must be positive")
			}
			reply, err := readReply(cmd, file)
			if err != nil {
				return err
			}
			return runChatApply(cmd, app, session.resolve(app), prompt, reply, chunkSize)
		},
	}

	session.register(cmd)
	cmd.Flags().StringVar(&file, "file", "-", "Reply file, - for stdin")
	cmd.Flags().StringVar(&prompt, "prompt", "", "User message the reply answers")
	cmd.Flags().IntVar(&chunkSize, "chunk", defaultChunkSize, "Characters fed to the parser per chunk")

	return cmd
}

func runChatApply(cmd *cobra.Command, app *app, chatID, prompt, reply string, chunkSize int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	workbench := app.newWorkbench(chatID, cmd.ErrOrStderr())
	defer workbench.Reset()

	if loaded, err := workbench.LoadStrategyFiles(ctx); err != nil {
		app.logger.Warn("restore strategy files", zap.Error(err))
	} else if len(loaded) > 0 {
		app.logger.Info("restored strategy files", zap.Strings("files", loaded))
	}

	messageID := uuid.NewString()
	for _, chunk := range splitChunks(reply, chunkSize) {
		if _, err := io.WriteString(out, workbench.Stream(ctx, messageID, chunk)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}

	if err := workbench.FinishMessage(ctx, messageID); err != nil {
		return fmt.Errorf("wait for actions: %w", err)
	}

	failed := 0
	for _, record := range workbench.Runner().Actions() {
		if record.Status == domain.ActionStatusFailed {
			failed++
		}
		if _, err := fmt.Fprintln(out, describeAction(record)); err != nil {
			return err
		}
	}
	if identity, ok := workbench.Strategy(); ok {
		if _, err := fmt.Fprintf(out, "strategy: %s (%s)\n", identity.StrategyName(), identity.ClassName); err != nil {
			return err
		}
	}

	if err := saveChatTurn(ctx, app, chatID, messageID, prompt, reply); err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			return err
		}
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: not signed in, chat history was not saved")
	}

	if failed > 0 {
		return fmt.Errorf("%d action(s) failed", failed)
	}
	return nil
}

func describeAction(record domain.ActionRecord) string {
	target := record.Action.FilePath
	if record.Action.Type == domain.ActionTypeShell {
		target = strings.TrimSpace(record.Action.Content)
	}
	line := fmt.Sprintf("[%s] %s %s", record.Status, record.Action.Type, target)
	if record.Error != "" {
		line += ": " + record.Error
	}
	return line
}

// saveChatTurn appends the prompt and reply to the stored chat and syncs it.
func saveChatTurn(ctx context.Context, app *app, chatID, messageID, prompt, reply string) error {
	user, err := app.auth.GetUser(ctx)
	if err != nil {
		return err
	}

	chat, err := app.store.GetChat(ctx, user.ID, chatID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if chat.ID == "" {
		chat = domain.ChatHistory{ID: chatID, URLID: chatID, Description: describeChat(prompt, chatID)}
	}
	if prompt != "" {
		chat.Messages = append(chat.Messages, domain.ChatMessage{ID: uuid.NewString(), Role: "user", Content: prompt})
	}
	chat.Messages = append(chat.Messages, domain.ChatMessage{ID: messageID, Role: "assistant", Content: reply})
	chat.Timestamp = app.now()

	syncer := application.NewChatSyncer(app.store, app.auth, app.cfg.SyncDebounce, app.cfg.SyncTimeout, app.logger)
	result := syncer.Schedule(chat)
	if err := syncer.Flush(ctx); err != nil {
		return err
	}
	return <-result
}

func describeChat(prompt, chatID string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "Chat " + chatID
	}
	if utf8.RuneCountInString(prompt) <= chatDescriptionLength {
		return prompt
	}
	return string([]rune(prompt)[:chatDescriptionLength]) + "..."
}

func newChatShowCmd(app *app) *cobra.Command {
	var session sessionFlags

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored history of a chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := app.auth.GetUser(cmd.Context())
			if err != nil {
				return err
			}
			chat, err := app.store.GetChat(cmd.Context(), user.ID, session.resolve(app))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s (%s)\n", chat.Description, chat.ID); err != nil {
				return err
			}
			for _, msg := range chat.Messages {
				if _, err := fmt.Fprintf(out, "%s: %s\n", msg.Role, msg.Content); err != nil {
					return err
				}
			}
			return nil
		},
	}

	session.register(cmd)

	return cmd
}

func readReply(cmd *cobra.Command, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return string(data), nil
}

// splitChunks cuts s into pieces of at most size runes.
func splitChunks(s string, size int) []string {
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
