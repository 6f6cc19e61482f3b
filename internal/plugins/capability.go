package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

// ErrInvalidDescriptor marks a capability that cannot be registered.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// CommandHandler runs a slash command. args excludes the command token itself.
type CommandHandler func(ctx context.Context, s bus.Sender, roomID string, args []string) error

// SubmissionHandler receives card submissions.
type SubmissionHandler func(ctx context.Context, s bus.Sender, sub bus.Submission) error

// Capability is one entry exported by a plugin unit.
// It is either Informational or Routable.
type Capability interface {
	// Title is the left-hand side of the help listing line.
	Title() string
	// Summary is the right-hand side of the help listing line.
	Summary() string
	validate() error
}

// Informational is a listing-only capability with no command routing.
type Informational struct {
	Name        string
	Description string
}

func (c Informational) Title() string   { return c.Name }
func (c Informational) Summary() string { return c.Description }

func (c Informational) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: informational capability without name", ErrInvalidDescriptor)
	}
	return nil
}

// Routable binds a slash command to a handler.
type Routable struct {
	Command     string
	Description string
	Handler     CommandHandler
}

func (c Routable) Title() string   { return c.Command }
func (c Routable) Summary() string { return c.Description }

func (c Routable) validate() error {
	switch {
	case c.Command == "":
		return fmt.Errorf("%w: empty command", ErrInvalidDescriptor)
	case !strings.HasPrefix(c.Command, "/"):
		return fmt.Errorf("%w: command %q must start with /", ErrInvalidDescriptor, c.Command)
	case strings.ContainsAny(c.Command, " \t\r\n"):
		return fmt.Errorf("%w: command %q contains whitespace", ErrInvalidDescriptor, c.Command)
	case c.Handler == nil:
		return fmt.Errorf("%w: command %q has no handler", ErrInvalidDescriptor, c.Command)
	}
	return nil
}

// Unit is a loadable plugin. Describe may return any mix of capabilities, including none.
type Unit interface {
	Describe() []Capability
}

// Submitter is implemented by units that want card submissions.
type Submitter interface {
	HandleSubmission(ctx context.Context, s bus.Sender, sub bus.Submission) error
}

// UnitFunc adapts a function to Unit.
type UnitFunc func() []Capability

func (f UnitFunc) Describe() []Capability { return f() }
