package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"peerlink/datamodel/message"
	"peerlink/datamodel/peer"
	"peerlink/node"
	"peerlink/registry"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Peer is what the console needs from a running node.
type Peer interface {
	Identity() string
	Send(ctx context.Context, target string, content string) error
	List(ctx context.Context) ([]*peer.Record, error)
	Receive() (*message.Message, bool)
}

var (
	incomingColor = color.New(color.FgCyan, color.Bold)
	okColor       = color.New(color.FgGreen)
	errColor      = color.New(color.FgRed)
	promptColor   = color.New(color.FgYellow)
)

const consoleHelp = `Commands:
  send <id> <message...>  send a message to a registered peer
  list                    list registered peers
  recv                    take the oldest received message from the queue
  help                    show this help
  quit                    unregister and exit`

// Console is the interactive line-oriented front end of a peer.
// Incoming messages may be printed from other goroutines through Notify.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) printf(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col.Fprintf(c.out, format, args...)
	fmt.Fprintln(c.out)
}

// Notify prints an incoming message; it is used as the endpoint hook.
func (c *Console) Notify(m *message.Message) {
	c.printf(incomingColor, "[%s] %s", m.From, m.Content)
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(r)
		for s.Scan() {
			lines <- s.Text()
		}
	}()
	return lines
}

// Run reads commands from in until quit, end of input or ctx cancellation.
func (c *Console) Run(ctx context.Context, p Peer, in io.Reader) error {
	c.printf(promptColor, "Connected as %s. Type 'help' for commands.", p.Identity())

	lines := readLines(in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if c.Execute(ctx, p, line) {
				return nil
			}
		}
	}
}

// Execute runs a single console command and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, p Peer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "send":
		if len(fields) < 3 {
			c.printf(errColor, "usage: send <id> <message...>")
			return false
		}
		target := fields[1]
		content := strings.Join(fields[2:], " ")
		if err := p.Send(ctx, target, content); err != nil {
			c.printf(errColor, "%s", describeSendError(target, err))
			return false
		}
		c.printf(okColor, "Message sent to %s", target)

	case "list":
		c.printList(ctx, p)

	case "recv":
		m, ok := p.Receive()
		if !ok {
			c.printf(promptColor, "No messages")
			return false
		}
		c.printf(incomingColor, "[%s] %s", m.From, m.Content)

	case "help":
		c.printf(promptColor, "%s", consoleHelp)

	case "quit", "exit":
		return true

	default:
		c.printf(errColor, "Unknown command %q, type 'help' for commands", fields[0])
	}
	return false
}

func (c *Console) printList(ctx context.Context, p Peer) {
	records, err := p.List(ctx)
	if err != nil {
		c.printf(errColor, "Failed to list clients: %v", err)
		return
	}
	if len(records) == 0 {
		c.printf(promptColor, "No registered clients")
		return
	}
	slices.SortFunc(records, func(a, b *peer.Record) int { return strings.Compare(a.Identity, b.Identity) })
	c.printf(promptColor, "Registered clients:")
	for _, r := range records {
		suffix := ""
		if r.Identity == p.Identity() {
			suffix = " (you)"
		}
		c.printf(okColor, "  %s at %s:%d%s", r.Identity, r.Address, r.Port, suffix)
	}
}

func describeSendError(target string, err error) string {
	switch {
	case errors.Is(err, node.ErrTargetUnavailable):
		return fmt.Sprintf("Client %s is not available", target)
	case errors.Is(err, registry.ErrUnavailable):
		return fmt.Sprintf("Registry unavailable: %v", err)
	default:
		return fmt.Sprintf("Failed to send message to %s: %v", target, err)
	}
}
