package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Answer is the operator's reply to a yes/no prompt.
type Answer int

const (
	Yes Answer = iota
	No
	Cancel
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "cancel"
	}
}

// PromptYesNo prints "<message> (Y/n) " and reads keys until one of y,
// Enter, n or Esc is pressed. Ctrl+C counts as Esc. The prompt line is
// erased before returning.
func PromptYesNo(ctx context.Context, keys KeyReader, w io.Writer, message string) (Answer, error) {
	for {
		guard := TempPrint(w)
		fmt.Fprintf(w, "%s (Y/n) ", message)
		key, err := keys.ReadKey(ctx)
		guard.Close()
		if err != nil {
			return Cancel, err
		}

		switch key.Code {
		case KeyEnter:
			return Yes, nil
		case KeyEscape, KeyInterrupt:
			return Cancel, nil
		case KeyRune:
			switch key.Rune {
			case 'y', 'Y':
				return Yes, nil
			case 'n', 'N':
				return No, nil
			}
		}
	}
}

// WaitForKey prints message, when not empty, and blocks until a key is
// pressed or ctx is done.
func WaitForKey(ctx context.Context, keys KeyReader, w io.Writer, message string) (Key, error) {
	if message != "" {
		fmt.Fprint(w, message)
	}
	return keys.ReadKey(ctx)
}

// PromptYesNo prompts on the terminal.
func (t *Terminal) PromptYesNo(ctx context.Context, message string) (Answer, error) {
	return PromptYesNo(ctx, t, t.out, message)
}

// Guard marks the cursor position when created. Close moves the cursor back
// there and erases everything printed below it.
type Guard struct {
	w    io.Writer
	once sync.Once
}

// TempPrint starts a region of temporary output on w.
func TempPrint(w io.Writer) *Guard {
	io.WriteString(w, ansi.SaveCursor)
	return &Guard{w: w}
}

// Close erases the temporary region. It is safe to call more than once.
func (g *Guard) Close() {
	g.once.Do(func() {
		io.WriteString(g.w, ansi.RestoreCursor+ansi.EraseScreenBelow)
	})
}

// Plain strips escape sequences from s.
func Plain(s string) string {
	return strings.TrimSpace(ansi.Strip(s))
}
