package core

import (
	"errors"
	"sync"
)

// CommandHandler handles one command. It decodes its own arguments from
// data.
type CommandHandler func(data *[]byte) error

// Command is an entry of the monitor dictionary. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "alarm=%u"
	Handler CommandHandler
}

// Signature is the dictionary key of the command: its name followed by
// the argument format.
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// IsResponse reports whether the entry is sent by the firmware
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// CommandRegistry assigns IDs to commands and responses in registration
// order.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
}

// ErrUnknownCommand is returned by Dispatch for an unregistered ID or a
// response ID.
var ErrUnknownCommand = errors.New("unknown command")

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command. Registering a name twice returns the first ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.nameToID[name] = id
	return id
}

// RegisterResponse adds a message sent by the firmware
func (r *CommandRegistry) RegisterResponse(name string, format string) uint16 {
	return r.Register(name, format, nil)
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands and responses
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Commands returns all entries ordered by ID
func (r *CommandRegistry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Dispatch calls the handler registered for cmdID. Its signature matches
// protocol.CommandHandler.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return unknownCommandError(cmdID)
	}
	return cmd.Handler(data)
}

type unknownCommandError uint16

func (e unknownCommandError) Error() string {
	return "unknown command ID: " + Utoa(uint32(e))
}

func (e unknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}
