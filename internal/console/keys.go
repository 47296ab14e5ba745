// Package console implements the operator-facing terminal primitives: single
// key reads that can be cancelled, yes/no prompts and temporary output that
// is erased once it is no longer relevant.
package console

import (
	"context"
	"io"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/juju/errors"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// KeyCode classifies a key press.
type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyEnter
	KeyEscape
	KeyInterrupt
	KeyOther
)

// Key is a single key press.
type Key struct {
	Code KeyCode
	Rune rune
}

// KeyReader reads one key press. ReadKey returns ctx.Err() once ctx is done.
type KeyReader interface {
	ReadKey(ctx context.Context) (Key, error)
}

// Terminal reads keys from a console input and writes to its output.
type Terminal struct {
	in  *os.File
	out io.Writer

	mu sync.Mutex
	// pending holds bytes read past the last returned key.
	pending []byte
}

// New returns a Terminal on in and out. Typically os.Stdin and os.Stdout.
func New(in *os.File, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// ReadKey blocks until a key is pressed or ctx is done. When the input is a
// terminal it is switched to raw mode for the duration of the read. Keys
// typed ahead arrive in the same read and are returned by later calls.
func (t *Terminal) ReadKey(ctx context.Context) (Key, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Key{}, err
	}
	if len(t.pending) > 0 {
		return t.next(t.pending), nil
	}

	fd := int(t.in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return Key{}, errors.Annotate(err, "cannot switch console to raw mode")
		}
		defer term.Restore(fd, state)
	}

	reader, err := cancelreader.NewReader(t.in)
	if err != nil {
		return Key{}, errors.Annotate(err, "cannot read console input")
	}
	defer reader.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			reader.Cancel()
		case <-done:
		}
	}()

	buf := make([]byte, 32)
	for {
		n, err := reader.Read(buf)
		if err != nil {
			if errors.Is(err, cancelreader.ErrCanceled) && ctx.Err() != nil {
				return Key{}, ctx.Err()
			}
			return Key{}, errors.Annotate(err, "failed to read key")
		}
		if n == 0 {
			continue
		}
		return t.next(buf[:n]), nil
	}
}

// next decodes the first key of b and keeps the rest for later reads.
func (t *Terminal) next(b []byte) Key {
	key, n := parseKey(b)
	t.pending = append(t.pending[:0], b[n:]...)
	return key
}

// parseKey decodes the first key of a raw console read and reports how many
// bytes it used. Escape sequences such as arrow keys are reported as
// KeyOther.
func parseKey(b []byte) (Key, int) {
	switch b[0] {
	case '\r':
		if len(b) > 1 && b[1] == '\n' {
			return Key{Code: KeyEnter}, 2
		}
		return Key{Code: KeyEnter}, 1
	case '\n':
		return Key{Code: KeyEnter}, 1
	case 0x03:
		return Key{Code: KeyInterrupt}, 1
	case 0x1b:
		if len(b) == 1 {
			return Key{Code: KeyEscape}, 1
		}
		return Key{Code: KeyOther}, escapeLen(b)
	}
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError {
		return Key{Code: KeyOther}, size
	}
	return Key{Code: KeyRune, Rune: r}, size
}

// escapeLen returns the length of the escape sequence at the start of b.
// CSI sequences run to their final byte, SS3 sequences are three bytes and
// anything else is an alt-modified key.
func escapeLen(b []byte) int {
	switch b[1] {
	case '[':
		for i := 2; i < len(b); i++ {
			if b[i] >= 0x40 && b[i] <= 0x7e {
				return i + 1
			}
		}
		return len(b)
	case 'O':
		return min(3, len(b))
	}
	return 2
}
