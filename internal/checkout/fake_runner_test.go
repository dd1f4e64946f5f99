package checkout

import (
	"context"

	"github.com/stwalsh4118/integrity/internal/command"
)

// recordedCall is one command seen by fakeRunner
type recordedCall struct {
	Dir string
	Cmd command.Command
}

type fakeState struct {
	calls   []recordedCall
	respond func(dir string, cmd command.Command) (stdout string, exitCode int)
}

// fakeRunner records commands instead of running them. Runners returned by
// In share the same call log.
type fakeRunner struct {
	dir   string
	state *fakeState
}

func newFakeRunner(respond func(dir string, cmd command.Command) (string, int)) *fakeRunner {
	return &fakeRunner{state: &fakeState{respond: respond}}
}

func (f *fakeRunner) Run(_ context.Context, cmd command.Command) (*command.Result, error) {
	f.state.calls = append(f.state.calls, recordedCall{Dir: f.dir, Cmd: cmd})

	var stdout string
	var code int
	if f.state.respond != nil {
		stdout, code = f.state.respond(f.dir, cmd)
	}
	return &command.Result{Stdout: stdout, ExitCode: code}, nil
}

func (f *fakeRunner) RunChecked(ctx context.Context, cmd command.Command) (*command.Result, error) {
	result, err := f.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		return result, &command.ExitError{Command: cmd, Dir: f.dir, ExitCode: result.ExitCode}
	}
	return result, nil
}

func (f *fakeRunner) In(dir string) command.Runner {
	return &fakeRunner{dir: dir, state: f.state}
}

func (f *fakeRunner) calls() []recordedCall {
	return f.state.calls
}

// countCalls counts recorded commands whose argv starts with the given words
func (f *fakeRunner) countCalls(prefix ...string) int {
	n := 0
	for _, call := range f.state.calls {
		argv := append([]string{call.Cmd.Name}, call.Cmd.Args...)
		if len(argv) < len(prefix) {
			continue
		}
		match := true
		for i, word := range prefix {
			if argv[i] != word {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
