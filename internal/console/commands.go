package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CommandContext holds the state available to command handlers.
type CommandContext struct {
	Ctx     context.Context
	Session *Session
	Out     io.Writer
	Args    []string
	Line    string
}

// Rest returns the command line after the command name and the first n
// arguments, with its inner spacing intact.
func (c CommandContext) Rest(n int) string {
	rest := strings.TrimSpace(c.Line)
	for i := 0; i <= n; i++ {
		idx := strings.IndexFunc(rest, isSpace)
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// Printf writes formatted output to the session.
func (c CommandContext) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.Out, format, args...)
}

// CommandHandler processes a console command. Returns true if the session
// should end (e.g., /quit).
type CommandHandler func(ctx CommandContext) bool

// Command describes a registered console command.
type Command struct {
	Usage   string // full usage for help (e.g., "/get <table> <key>"); defaults to command name
	Help    string
	Handler CommandHandler
}

// CommandRegistrar is the interface for registering commands before the
// console starts.
type CommandRegistrar interface {
	Register(name string, cmd Command)
	RegisterBuiltins()
}

// CommandRegistry maps command names to handlers and produces dynamic help.
// It is safe for concurrent use. Once frozen (via Freeze), no new commands
// can be registered.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string // insertion order for stable help output
	frozen   bool
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]Command),
	}
}

// Register adds a command to the registry. The name should include the leading
// slash (e.g., "/quit"). Registering the same name twice overwrites the previous entry.
// Panics if cmd.Handler is nil or if the registry is frozen.
func (r *CommandRegistry) Register(name string, cmd Command) {
	if cmd.Handler == nil {
		panic("console: Register called with nil handler for " + name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("console: Register called on frozen registry for " + name)
	}
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Freeze prevents further command registration. Session.Run calls it before
// reading the first line.
func (r *CommandRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Dispatch parses a command line and calls the matching handler.
// Returns true if the session should end.
func (r *CommandRegistry) Dispatch(ctx context.Context, line string, session *Session, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	name := parts[0]

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		_, _ = fmt.Fprintf(out, "Unknown command: %s (try /help)\n", name)
		return false
	}

	return cmd.Handler(CommandContext{
		Ctx:     ctx,
		Session: session,
		Out:     out,
		Args:    parts[1:],
		Line:    line,
	})
}

// HelpText returns a formatted help string listing all registered commands
// in registration order.
func (r *CommandRegistry) HelpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		display := name
		if cmd.Usage != "" {
			display = cmd.Usage
		}
		_, _ = fmt.Fprintf(&b, "  %-40s %s\n", display, cmd.Help)
	}
	return b.String()
}

// RegisterBuiltins registers /quit and /help.
func (r *CommandRegistry) RegisterBuiltins() {
	r.Register("/quit", Command{
		Help: "close the database and exit",
		Handler: func(ctx CommandContext) bool {
			ctx.Printf("Goodbye.\n")
			return true
		},
	})

	r.Register("/help", Command{
		Help: "show this help",
		Handler: func(ctx CommandContext) bool {
			ctx.Printf("%s", r.HelpText())
			return false
		},
	})
}
