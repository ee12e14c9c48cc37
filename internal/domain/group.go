package domain

// CommandGroup is a named, ordered collection of commands.
type CommandGroup struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Commands []Command `json:"commands"`
}

// Command is a single shell invocation with a display label.
// Detached commands are started fire-and-forget instead of awaited.
type Command struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Cmd      string `json:"cmd"`
	Detached bool   `json:"is_detached"`
}

// CommandInput carries the mutable fields of a command.
type CommandInput struct {
	Label    string `json:"label"`
	Cmd      string `json:"cmd"`
	Detached bool   `json:"is_detached"`
}

// Clone returns a deep copy of the group.
func (g CommandGroup) Clone() CommandGroup {
	out := g
	out.Commands = make([]Command, len(g.Commands))
	copy(out.Commands, g.Commands)
	return out
}

// FindCommand returns the command with the given ID and its position.
func (g CommandGroup) FindCommand(id string) (Command, int, bool) {
	for i, c := range g.Commands {
		if c.ID == id {
			return c, i, true
		}
	}
	return Command{}, -1, false
}

// Input returns the mutable fields of the command.
func (c Command) Input() CommandInput {
	return CommandInput{Label: c.Label, Cmd: c.Cmd, Detached: c.Detached}
}

// AppData is the import/export document.
type AppData struct {
	Groups    map[string]CommandGroup `json:"groups"`
	Schedules map[string]Schedule     `json:"schedules,omitempty"`
}
