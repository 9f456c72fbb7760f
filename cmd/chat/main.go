package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/vovakirdan/chatroom-client/internal/app"
	"github.com/vovakirdan/chatroom-client/internal/chat"
	"github.com/vovakirdan/chatroom-client/internal/config"
	"github.com/vovakirdan/chatroom-client/internal/core"
	"github.com/vovakirdan/chatroom-client/internal/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var overrides config.Config
	configPath := flag.String("config", "", "path to config file")
	flag.StringVar(&overrides.ServerURL, "addr", "", "websocket address of the chat server")
	flag.StringVar(&overrides.User, "user", "", "username")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	room := flag.String("room", "", "room to join on startup")
	flag.Parse()

	bootLog := log.New("info")
	cfg, _, err := config.Load(bootLog, *configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(overrides)
	if cfg.User == "" {
		cfg.User = "cli-user"
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()
	session := application.Session()

	printer := newPrinter()
	session.OnSnapshot(printer.print)
	session.OnError(func(err error) {
		fmt.Printf("! stream lost: %v\n", err)
	})

	if *room != "" {
		if err := session.JoinRoom(ctx, *room, cfg.User); err != nil {
			return err
		}
	} else {
		fmt.Println("No room joined. Use /join <room> to enter one.")
	}
	fmt.Println("Type messages and press Enter to send. /join <room>, /exit, Ctrl+C to quit.")

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
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, session, printer, cfg.User, line); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

func handleLine(ctx context.Context, session *chat.Session, printer *printer, user, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, "/join "):
		room := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
		printer.reset()
		if err := session.JoinRoom(ctx, room, user); err != nil {
			return err
		}
		fmt.Printf("--- joined %s ---\n", room)
		return nil
	case line == "/exit":
		session.ExitRoom()
		printer.reset()
		fmt.Println("--- left room ---")
		return nil
	default:
		state := session.State()
		return session.SendMessage(ctx, line, state.RoomID, state.UserID)
	}
}

// printer writes only the messages appended since the previous snapshot,
// so the terminal reads like a scrolling chat.
type printer struct {
	mu   sync.Mutex
	seen int
}

func newPrinter() *printer {
	return &printer{}
}

func (p *printer) reset() {
	p.mu.Lock()
	p.seen = 0
	p.mu.Unlock()
}

func (p *printer) print(items []core.AlignedMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(items) < p.seen {
		p.seen = 0
	}
	for _, item := range items[p.seen:] {
		if item.Own {
			fmt.Printf("%40s\n", "you: "+item.Message.Content)
		} else {
			fmt.Printf("%s: %s\n", item.Message.User, item.Message.Content)
		}
	}
	p.seen = len(items)
}
