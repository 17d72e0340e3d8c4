package batch

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner is a Runner for tests. It records every command and, unless
// Respond is set, answers like the submission client with sequential job
// IDs starting at 1001.
type FakeRunner struct {
	// Respond, if set, computes the reply to a command.
	Respond func(c Command) (string, error)

	mu       sync.Mutex
	commands []Command
	nextID   int
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, c Command) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, c)
	if f.Respond != nil {
		return f.Respond(c)
	}
	f.nextID++
	return fmt.Sprintf("\n%d\n", 1000+f.nextID), nil
}

// Commands returns the commands run so far.
func (f *FakeRunner) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}
