// Package command runs external processes on behalf of the checkout and
// build code. Commands are argv vectors and are never passed through a shell.
package command

import (
	"fmt"
	"strings"
)

// Command describes a single process invocation
type Command struct {
	Name string
	Args []string
	Env  []string // extra KEY=VALUE pairs appended to the inherited environment
}

// New builds a Command from a program name and its arguments
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// String renders the command for logs and error messages
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Result holds the captured outcome of a finished process
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the process exited with status zero
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Output returns the captured standard output
func (r *Result) Output() string {
	return r.Stdout
}

// ExitError is returned by RunChecked when a process exits nonzero.
type ExitError struct {
	Command  Command
	Dir      string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command.String(), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}
