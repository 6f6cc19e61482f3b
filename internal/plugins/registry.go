package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

// HelpCommand is the reserved default command. It is always installed and
// sends the help listing unless a plugin registers the same command.
const HelpCommand = "/"

// NamedUnit is a unit registered in code rather than through a manifest.
type NamedUnit struct {
	Name string
	Unit Unit
}

// Entry is one accepted capability with the unit that exported it.
type Entry struct {
	Unit       string
	Capability Capability
}

// NamedSubmitter is a unit that receives card submissions.
type NamedSubmitter struct {
	Unit    string
	Handler SubmissionHandler
}

// Table is an immutable command table with its help listing.
// A Table is never modified after Build returns it.
type Table struct {
	commands   map[string]CommandHandler
	entries    []Entry
	submitters []NamedSubmitter
	help       string
	builtAt    time.Time
}

// Lookup returns the handler for cmd.
func (t *Table) Lookup(cmd string) (CommandHandler, bool) {
	h, ok := t.commands[cmd]
	return h, ok
}

// Default returns the handler used when no command matches.
func (t *Table) Default() (CommandHandler, bool) {
	return t.Lookup(HelpCommand)
}

// Help returns the generated listing, one "title: summary" line per capability.
func (t *Table) Help() string { return t.help }

// Entries returns the accepted capabilities in load order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Commands returns the routable command strings in sorted order.
func (t *Table) Commands() []string {
	cmds := make([]string, 0, len(t.commands))
	for c := range t.commands {
		cmds = append(cmds, c)
	}
	sort.Strings(cmds)
	return cmds
}

// Submitters returns the submission handlers in load order.
func (t *Table) Submitters() []NamedSubmitter {
	out := make([]NamedSubmitter, len(t.submitters))
	copy(out, t.submitters)
	return out
}

// BuiltAt returns when the table was built.
func (t *Table) BuiltAt() time.Time { return t.builtAt }

// Build discovers units from the static list and then from the manifest directory,
// and aggregates their capabilities into a new Table.
//
// Later units win command collisions. A unit that fails to load or panics is logged
// and skipped; an invalid capability is logged and skipped without dropping its siblings.
// The returned error is non-nil only when dir exists but cannot be read; the table
// returned alongside it still holds the static units.
func Build(catalog *Catalog, dir string, static ...NamedUnit) (*Table, error) {
	t := &Table{
		commands: make(map[string]CommandHandler),
		builtAt:  time.Now(),
	}
	t.commands[HelpCommand] = func(ctx context.Context, s bus.Sender, roomID string, _ []string) error {
		return bus.SendText(ctx, s, roomID, t.help)
	}

	owners := make(map[string]string)
	for _, nu := range static {
		t.add(nu.Name, nu.Unit, owners)
	}

	paths, dirErr := listManifests(dir)
	for _, path := range paths {
		m, err := readManifest(path)
		if err != nil {
			slog.Warn("plugins: skipping manifest", "path", path, "error", err)
			continue
		}
		if m.Disabled {
			slog.Debug("plugins: manifest disabled", "name", m.Name)
			continue
		}
		unit, err := instantiate(catalog, m)
		if err != nil {
			slog.Error("plugins: failed to load unit", "name", m.Name, "unit", m.Unit, "error", err)
			continue
		}
		t.add(m.Name, unit, owners)
	}

	t.help = formatHelp(t.entries)
	return t, dirErr
}

// add registers every valid capability of one unit.
func (t *Table) add(name string, unit Unit, owners map[string]string) {
	caps, err := describe(unit)
	if err != nil {
		slog.Error("plugins: unit describe failed", "name", name, "error", err)
		return
	}

	for i, c := range caps {
		if c == nil {
			slog.Warn("plugins: skipping nil capability", "name", name, "index", i)
			continue
		}
		if err := c.validate(); err != nil {
			slog.Warn("plugins: skipping capability", "name", name, "index", i, "error", err)
			continue
		}
		if r, ok := c.(Routable); ok {
			if prev, exists := owners[r.Command]; exists {
				slog.Info("plugins: command overridden", "command", r.Command, "previous", prev, "by", name)
			}
			t.commands[r.Command] = r.Handler
			owners[r.Command] = name
		}
		t.entries = append(t.entries, Entry{Unit: name, Capability: c})
	}

	if s, ok := unit.(Submitter); ok {
		t.submitters = append(t.submitters, NamedSubmitter{Unit: name, Handler: s.HandleSubmission})
	}
}

func instantiate(catalog *Catalog, m *Manifest) (unit Unit, err error) {
	if catalog == nil {
		return nil, fmt.Errorf("no catalog for unit %q", m.Unit)
	}
	factory, ok := catalog.Factory(m.Unit)
	if !ok {
		return nil, fmt.Errorf("unknown unit kind %q", m.Unit)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	unit, err = factory(m.Options)
	if err == nil && unit == nil {
		err = fmt.Errorf("factory for %q returned no unit", m.Unit)
	}
	return unit, err
}

func describe(unit Unit) (caps []Capability, err error) {
	if unit == nil {
		return nil, fmt.Errorf("nil unit")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("describe panicked: %v", r)
		}
	}()
	return unit.Describe(), nil
}

func formatHelp(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Capability.Title(), e.Capability.Summary())
	}
	return b.String()
}

// Registry owns the current Table and rebuilds it on demand.
// Readers get a consistent snapshot; Reload swaps in a fully built table.
type Registry struct {
	catalog *Catalog
	dir     string
	static  []NamedUnit

	reloadMu sync.Mutex
	table    atomic.Pointer[Table]
}

// NewRegistry creates a registry. Until Load is called it serves a table that holds only
// the built-in help command.
func NewRegistry(catalog *Catalog, dir string, static ...NamedUnit) *Registry {
	r := &Registry{catalog: catalog, dir: dir, static: static}
	empty, _ := Build(nil, "")
	r.table.Store(empty)
	return r
}

// Dir returns the manifest directory.
func (r *Registry) Dir() string { return r.dir }

// Table returns the current table snapshot.
func (r *Registry) Table() *Table { return r.table.Load() }

// Load builds the table and installs it. On a directory read error the static units are
// still installed and the error is returned.
func (r *Registry) Load(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	t, err := Build(r.catalog, r.dir, r.static...)
	r.table.Store(t)
	slog.InfoContext(ctx, "plugins loaded", "dir", r.dir, "commands", len(t.commands), "entries", len(t.entries), "built_at", t.BuiltAt())
	return err
}

// Reload rebuilds the table and swaps it in. If the directory cannot be read the current
// table is kept.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	t, err := Build(r.catalog, r.dir, r.static...)
	if err != nil {
		slog.ErrorContext(ctx, "plugins reload failed, keeping current table", "dir", r.dir, "error", err)
		return err
	}
	r.table.Store(t)
	slog.InfoContext(ctx, "plugins reloaded", "dir", r.dir, "commands", len(t.commands), "entries", len(t.entries), "built_at", t.BuiltAt())
	return nil
}
