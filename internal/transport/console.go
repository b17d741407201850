package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleDialer is the development adapter: inbound messages are lines of
// "<phone> <text>" on In, outbound messages are printed to Out. The real
// channel adapter satisfies the same Dialer contract.
type ConsoleDialer struct {
	In  io.Reader
	Out io.Writer
}

func (d ConsoleDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	c := &consoleConn{
		out:    d.Out,
		events: make(chan Event, 16),
	}
	c.events <- Event{Kind: EventOpen}

	go func() {
		sc := bufio.NewScanner(d.In)
		for sc.Scan() {
			if ctx.Err() != nil {
				break
			}
			from, text, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
			if !ok || from == "" {
				continue
			}
			c.events <- Event{Kind: EventMessage, From: from, Text: text}
		}
		c.closeOnce.Do(func() {
			c.events <- Event{Kind: EventClosed, Err: sc.Err()}
			close(c.events)
		})
	}()
	return c, nil
}

type consoleConn struct {
	out       io.Writer
	events    chan Event
	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *consoleConn) Events() <-chan Event { return c.events }

func (c *consoleConn) Send(_ context.Context, to string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.ImageURL != "" {
		_, err := fmt.Fprintf(c.out, "-> %s [image %s] %s\n", to, msg.ImageURL, msg.Caption)
		return err
	}
	_, err := fmt.Fprintf(c.out, "-> %s %s\n", to, msg.Text)
	return err
}

func (c *consoleConn) Close() error {
	c.closeOnce.Do(func() {
		c.events <- Event{Kind: EventClosed}
		close(c.events)
	})
	return nil
}
