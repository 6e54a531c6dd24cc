package main

import (
	"bufio"
	"charity-chat/auth"
	"charity-chat/client"
	"charity-chat/domain"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const help = `commands:
  /chats           list your chats
  /open <n>        open chat number n of /chats
  /with <id>       open the chat with an account
  /find <text>     search the open chat
  /retry <key>     resend a failed message
  /quit            leave
anything else is sent to the open chat`

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	config, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := client.Login(ctx, config.URL, auth.LoginRequest{Email: config.Email, Password: config.Password})
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}
	session, err := client.NewSession(ctx, config.URL, creds.Token,
		client.WithAckTimeout(config.AckTimeout), client.WithLogger(logger))
	if err != nil {
		return exitRuntime, err
	}
	defer session.Close()

	t := &terminal{
		session: session,
		printer: newPrinter(os.Stdout, session.Profile().ID(), config.Colours),
	}
	t.printer.header("Hola " + session.Profile().DisplayName())
	if err := t.listChats(ctx); err != nil {
		return exitRuntime, err
	}
	if config.With != "" {
		if err := t.openWith(ctx, config.With); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	fmt.Println(help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if quit := t.handle(ctx, strings.TrimSpace(line)); quit {
				return exitOK, nil
			}
		}
	}
}

type terminal struct {
	session  *client.Session
	printer  *printer
	previews []domain.ChatPreview
	conv     *client.Conversation
}

// handle runs one input line and reports whether the user asked to quit.
func (t *terminal) handle(ctx context.Context, line string) bool {
	command, arg, _ := strings.Cut(line, " ")
	var err error
	switch command {
	case "":
	case "/quit":
		return true
	case "/chats":
		err = t.listChats(ctx)
	case "/open":
		err = t.openNumber(ctx, arg)
	case "/with":
		err = t.openWith(ctx, arg)
	case "/find":
		err = t.find(ctx, arg)
	case "/retry":
		if t.conv == nil {
			err = fmt.Errorf("no chat open")
			break
		}
		_, err = t.conv.Retry(ctx, arg)
	default:
		if t.conv == nil {
			err = fmt.Errorf("no chat open, use /open or /with")
			break
		}
		_ = t.conv.Typing(ctx)
		_, err = t.conv.Send(ctx, line)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return false
}

func (t *terminal) listChats(ctx context.Context) error {
	previews, err := t.session.API().ListChats(ctx, t.session.Profile().ID(), "")
	if err != nil {
		return err
	}
	t.previews = previews
	renderChats(os.Stdout, previews)
	return nil
}

func (t *terminal) openNumber(ctx context.Context, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(t.previews) {
		return fmt.Errorf("no chat number %q, see /chats", arg)
	}
	preview := t.previews[n-1]
	return t.open(ctx, preview.ID, preview.Other.Name)
}

func (t *terminal) openWith(ctx context.Context, receiverID string) error {
	chat, err := t.session.API().CreateChat(ctx, t.session.Profile().ID(), receiverID)
	if err != nil {
		return err
	}
	other, _ := chat.Other(t.session.Profile().ID())
	return t.open(ctx, chat.ID, other.Name)
}

func (t *terminal) open(ctx context.Context, chatID domain.ChatID, title string) error {
	conv, err := t.session.Open(ctx, chatID)
	if err != nil {
		return err
	}
	t.conv = conv
	t.printer.reset()
	t.printer.header(title)
	conv.OnChange(func() { t.printer.flush(conv.Entries()) })
	conv.OnTyping(func(string) { fmt.Println("  … " + title + " is typing") })
	t.printer.flush(conv.Entries())
	return nil
}

func (t *terminal) find(ctx context.Context, query string) error {
	if t.conv == nil {
		return fmt.Errorf("no chat open")
	}
	found, err := t.session.API().SearchMessages(ctx, t.conv.ChatID(), query, 0)
	if err != nil {
		return err
	}
	t.printer.header(fmt.Sprintf("%d result(s) for %q", len(found), query))
	for _, m := range found {
		fmt.Println(t.printer.line(sentEntry(m)))
	}
	return nil
}
