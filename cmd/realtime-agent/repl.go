package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AltairaLabs/RealtimeKit/realtime"
)

var errQuit = errors.New("quit")

// controller is the part of agent.Session driven from the console.
type controller interface {
	Toggle()
	ToggleScreenShare() bool
	Status() realtime.Status
	SendText(text string) error
}

// readLines scans r on its own goroutine. The channel closes at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// repl handles console lines until ctx is done or /quit. Closed input keeps
// the session running until ctx is done.
func repl(ctx context.Context, lines <-chan string, out io.Writer, s controller) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := handleLine(strings.TrimSpace(line), out, s); err != nil {
				return err
			}
		}
	}
}

func handleLine(line string, out io.Writer, s controller) error {
	switch line {
	case "":
		return nil
	case "/quit", "/exit":
		return errQuit
	case "/toggle":
		s.Toggle()
	case "/screen":
		if s.ToggleScreenShare() {
			fmt.Fprintln(out, "screen sharing on")
		} else {
			fmt.Fprintln(out, "screen sharing off")
		}
	case "/status":
		fmt.Fprintln(out, s.Status())
	default:
		if strings.HasPrefix(line, "/") {
			fmt.Fprintf(out, "unknown command %s\n", line)
			return nil
		}
		if err := s.SendText(line); err != nil {
			fmt.Fprintf(out, "not sent: %v\n", err)
		}
	}
	return nil
}
