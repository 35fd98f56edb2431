// Package console is an interactive shell over one idb database.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/term"

	"idbkit/internal/logging"
	"idbkit/pkg/idb"
)

var logger = logging.For("console")

// Session is one console attached to a database. Schema commands replace the
// database handle with one opened at the next version.
type Session struct {
	factory *idb.Factory

	mu sync.Mutex
	db *idb.Database
}

// NewSession attaches a session to an opened database handle.
func NewSession(factory *idb.Factory, db *idb.Database) *Session {
	return &Session{factory: factory, db: db}
}

// DB returns the current database handle.
func (s *Session) DB() *idb.Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Upgrade reopens the database at the next version and runs fn in the
// upgrade transaction. On failure the previous handle is reopened.
func (s *Session) Upgrade(ctx context.Context, fn idb.UpgradeFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.db
	next := s.factory.Database(prev.Name(), prev.Version()+1)
	if err := prev.Close(); err != nil {
		return err
	}
	if _, err := next.Open(ctx, fn).Wait(ctx); err != nil {
		if _, rerr := prev.Open(ctx, nil).Wait(ctx); rerr != nil {
			return multierr.Append(err, fmt.Errorf("reopening version %d: %w", prev.Version(), rerr))
		}
		return err
	}
	s.db = next
	logger.Info("schema upgraded", "db", next.Name(), "version", next.Version())
	return nil
}

// Close closes the current database handle.
func (s *Session) Close() error {
	return s.DB().Close()
}

func (s *Session) prompt() string {
	db := s.DB()
	return fmt.Sprintf("[%s v%d]> ", db.Name(), db.Version())
}

// RunTerminal runs the console on an interactive terminal until /quit or EOF.
func (s *Session) RunTerminal(ctx context.Context, reg *CommandRegistry, rw io.ReadWriter) error {
	terminal := term.NewTerminal(rw, s.prompt())
	_, _ = fmt.Fprintf(terminal, "Connected to %s (version %d).\n", s.DB().Name(), s.DB().Version())
	_, _ = fmt.Fprintln(terminal, "Type /help for commands.")
	return s.run(ctx, reg, terminal, terminal, func() { terminal.SetPrompt(s.prompt()) })
}

// RunLines runs the console on plain line input, such as a piped script.
func (s *Session) RunLines(ctx context.Context, reg *CommandRegistry, r io.Reader, w io.Writer) error {
	return s.run(ctx, reg, &scanner{bufio.NewScanner(r)}, w, nil)
}

type lineReader interface {
	ReadLine() (string, error)
}

type scanner struct{ *bufio.Scanner }

func (s *scanner) ReadLine() (string, error) {
	if s.Scan() {
		return s.Text(), nil
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *Session) run(ctx context.Context, reg *CommandRegistry, in lineReader, out io.Writer, refresh func()) error {
	reg.Freeze()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := in.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			_, _ = fmt.Fprintln(out, "Commands start with / (try /help)")
			continue
		}
		if reg.Dispatch(ctx, line, s, out) {
			return nil
		}
		if refresh != nil {
			refresh()
		}
	}
}
