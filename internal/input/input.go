// Package input reads lines of interactive REPL input - one typed
// event per line - for cmd/harelsh, either from an arbitrary stream or
// from a real TTY via readline.
package input

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// DirectEventReader reads event lines from any generic input stream.
// It can be used with any io.Reader but does not sanitize the input of
// control and escape sequences, so it is meant for piped/scripted
// input rather than a live terminal.
//
// DirectEventReader should not be used directly; instead, create one
// with [NewDirectReader].
type DirectEventReader struct {
	r             *bufio.Reader
	blanksAllowed bool
}

// InteractiveEventReader reads event lines from stdin using a Go
// implementation of GNU Readline. This keeps input clear of typing and
// editing escape sequences and enables line history, so it should
// generally only be used when directly connected to a TTY.
//
// InteractiveEventReader should not be used directly; instead, create
// one with [NewInteractiveReader].
type InteractiveEventReader struct {
	rl            *readline.Instance
	blanksAllowed bool
	prompt        string
}

// NewDirectReader creates a DirectEventReader buffering r. The returned
// reader must have Close called on it before disposal.
func NewDirectReader(r io.Reader) *DirectEventReader {
	return &DirectEventReader{
		r: bufio.NewReader(r),
	}
}

// NewInteractiveReader creates an InteractiveEventReader and
// initializes readline. The returned reader must have Close called on
// it before disposal to properly tear down readline resources.
func NewInteractiveReader() (*InteractiveEventReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "harelsh> ",
	})
	if err != nil {
		return nil, fmt.Errorf("create readline config: %w", err)
	}

	return &InteractiveEventReader{
		rl:     rl,
		prompt: "harelsh> ",
	}, nil
}

// Close is a no-op; DirectEventReader owns no teardown-requiring
// resources, but callers should treat it as though it must have Close
// called so a future reader backed by a real resource is a drop-in
// replacement.
func (der *DirectEventReader) Close() error {
	return nil
}

// Close tears down the underlying readline instance.
func (ier *InteractiveEventReader) Close() error {
	return ier.rl.Close()
}

// ReadEvent reads the next line from the stream. The returned string is
// only empty if there is an error reading input; otherwise this blocks
// until a line containing non-space characters is read (or, if
// AllowBlank was set, until any line at all is read).
//
// At end of input, the returned string is empty and the error is
// io.EOF. Any other read error is returned as-is.
func (der *DirectEventReader) ReadEvent() (string, error) {
	var line string
	var err error

	for line == "" {
		line, err = der.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		line = strings.TrimSpace(line)

		if line == "" && der.blanksAllowed {
			return line, nil
		}
	}

	return line, nil
}

// ReadEvent reads the next line typed at the terminal, with the same
// blank-line semantics as DirectEventReader.ReadEvent.
func (ier *InteractiveEventReader) ReadEvent() (string, error) {
	var line string
	var err error

	for line == "" {
		line, err = ier.rl.Readline()
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		line = strings.TrimSpace(line)

		if line == "" && ier.blanksAllowed {
			return line, nil
		}
	}

	return line, nil
}

// AllowBlank sets whether a blank line is returned as-is rather than
// skipped. By default it is not.
func (der *DirectEventReader) AllowBlank(allow bool) {
	der.blanksAllowed = allow
}

// AllowBlank sets whether a blank line is returned as-is rather than
// skipped. By default it is not.
func (ier *InteractiveEventReader) AllowBlank(allow bool) {
	ier.blanksAllowed = allow
}

// SetPrompt updates the prompt text shown before each line.
func (ier *InteractiveEventReader) SetPrompt(p string) {
	ier.prompt = p
	ier.rl.SetPrompt(p)
}

// GetPrompt returns the current prompt text.
func (ier *InteractiveEventReader) GetPrompt() string {
	return ier.prompt
}
