package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"support-chat/client"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/internal"
)

// Config defines the viewer-side environment variables. VIEWER_FOCUSED
// mirrors the browser's visibility state: set it to false to receive
// terminal-bell notifications for support replies.
type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"http://localhost:8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	Focused   bool   `envconfig:"VIEWER_FOCUSED" default:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Viewer error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	mgr := client.NewManager(log, config.ServerURL,
		terminalNotifier{}, staticVisibility(config.Focused))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() { _ = mgr.Run(ctx) }()

	renderSnapshot(mgr)
	go renderLive(ctx, mgr)

	color.Gray.Println("Type a message and press Enter to send (Ctrl+C to quit).")
	input := bufio.NewScanner(os.Stdin)
	for input.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		mgr.SendMessage(input.Text())
	}
	return input.Err()
}

// renderSnapshot waits briefly for the init replay and prints the
// conversation so far as a table.
func renderSnapshot(mgr *client.Manager) {
	deadline := time.Now().Add(3 * time.Second)
	var st client.State
	for time.Now().Before(deadline) {
		st = mgr.State()
		if st.Connected && len(st.Messages) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if len(st.Messages) == 0 {
		color.Yellow.Println("No conversation history yet.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(lo.Map(st.Messages, func(m domain.Message, _ int) []string {
		return []string{m.CreatedAt.Local().Format(time.TimeOnly), string(m.Sender), m.Content}
	}))
	table.Render()
}

// renderLive polls the manager state and prints new messages and
// connectivity transitions as they happen.
func renderLive(ctx context.Context, mgr *client.Manager) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	var lastID uuid.UUID
	var lastErr string
	wasConnected := false

	if st := mgr.State(); len(st.Messages) > 0 {
		lastID = st.Messages[len(st.Messages)-1].ID
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := mgr.State()

			if st.Connected && !wasConnected {
				color.Green.Println(">>> Connected to support chat")
			}
			if st.Error != "" && st.Error != lastErr {
				color.Red.Println(st.Error)
			}
			wasConnected = st.Connected
			lastErr = st.Error

			start := 0
			if lastID != uuid.Nil {
				for i, m := range st.Messages {
					if m.ID == lastID {
						start = i + 1
						break
					}
				}
			}
			for _, m := range st.Messages[start:] {
				printMessage(m)
			}
			if len(st.Messages) > 0 {
				lastID = st.Messages[len(st.Messages)-1].ID
			}
		}
	}
}

func printMessage(m domain.Message) {
	stamp := m.CreatedAt.Local().Format(time.TimeOnly)
	switch m.Sender {
	case domain.SenderSupport:
		color.Cyan.Printf("[%s] support: %s\n", stamp, m.Content)
	default:
		color.Green.Printf("[%s] you: %s\n", stamp, m.Content)
	}
}

// terminalNotifier rings the terminal bell for background support
// replies. Permission is always granted in a terminal.
type terminalNotifier struct{}

func (terminalNotifier) CanNotify() bool { return true }

func (terminalNotifier) Notify(m domain.Message) error {
	fmt.Print("\a")
	color.New(color.BgBlack, color.FgGreen).Printf("Support replied: %s\n", m.Content)
	return nil
}

// staticVisibility adapts the VIEWER_FOCUSED flag to the visibility
// capability the manager expects.
type staticVisibility bool

func (v staticVisibility) Visible() bool { return bool(v) }

var _ contract.Notifier = terminalNotifier{}
var _ contract.Visibility = staticVisibility(false)
