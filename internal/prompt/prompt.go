// Package prompt implements the operator decision points: yes/no
// confirmations and credential entry.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Fallback policies selectable from configuration.
const (
	PolicyAsk    = "ask"
	PolicyAccept = "accept"
	PolicySkip   = "skip"
)

// Confirmer answers a yes/no question. Implementations may block on a
// terminal or answer from a fixed policy.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// Always returns a Confirmer that answers every question with answer.
func Always(answer bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) (bool, error) { return answer, nil })
}

// ForPolicy maps a configured policy name to a Confirmer. PolicyAsk uses
// console.
func ForPolicy(policy string, console *Console) (Confirmer, error) {
	switch policy {
	case PolicyAsk, "":
		return console, nil
	case PolicyAccept:
		return Always(true), nil
	case PolicySkip:
		return Always(false), nil
	}
	return nil, fmt.Errorf("prompt: unknown policy %q", policy)
}

// Console prompts on an interactive terminal.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal fd for masked input; -1 when in is not a terminal
}

// NewConsole returns a Console reading from in and writing prompts to out.
// Password entry is masked when in is a terminal.
func NewConsole(in io.Reader, out io.Writer) *Console {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Console{in: bufio.NewReader(in), out: out, fd: fd}
}

// Confirm asks question until the operator answers y/yes or n/no.
func (c *Console) Confirm(ctx context.Context, question string) (bool, error) {
	for {
		fmt.Fprintf(c.out, "  %s (y/N) ", question)
		line, err := c.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			return false, nil
		}
		fmt.Fprintln(c.out, "  Please answer y or n.")
	}
}

// Ask prints label and returns the trimmed answer. When def is non-empty it
// is shown and returned for an empty answer.
func (c *Console) Ask(ctx context.Context, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	line, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Secret reads a value without echo when attached to a terminal.
func (c *Console) Secret(ctx context.Context, label string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", label)
	if c.fd < 0 {
		return c.readLine(ctx)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("prompt: read secret: %w", err)
	}
	return string(b), nil
}

// Println writes an informational line.
func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("prompt: input closed: %w", err)
		}
		return "", fmt.Errorf("prompt: read: %w", err)
	}
	return strings.TrimSpace(line), nil
}
