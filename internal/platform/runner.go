// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package platform probes the host for the capabilities the kill-switch
// firewall and tunnel backends depend on: OS family, privilege, tool
// availability, local network ranges, default gateway, and configured DNS.
// Every probe fails soft — a missing tool is reported as absent capability,
// never an error that aborts the caller.
package platform

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner abstracts subprocess execution so the platform probe,
// firewall driver, and tunnel backends can be tested against a fake
// without shelling out to a real binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// StdinCommandRunner is implemented by CommandRunners that also support
// piping data to the child's stdin, needed by iptables-restore/
// ip6tables-restore which read their ruleset from stdin rather than argv.
type StdinCommandRunner interface {
	CommandRunner
	RunWithStdin(ctx context.Context, name string, stdin []byte, args ...string) (stdout, stderr []byte, err error)
}

// RealCommandRunner executes commands via os/exec.
type RealCommandRunner struct{}

// Run implements CommandRunner.
func (RealCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return RealCommandRunner{}.RunWithStdin(ctx, name, nil, args...)
}

// RunWithStdin implements StdinCommandRunner.
func (RealCommandRunner) RunWithStdin(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// FakeCall records one invocation seen by FakeCommandRunner.
type FakeCall struct {
	Name  string
	Args  []string
	Stdin []byte
}

// FakeResponse is the canned result for one FakeCommandRunner invocation.
type FakeResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// FakeCommandRunner replays a scripted sequence of responses, in order,
// regardless of which command is requested, recording every call it sees.
// Components under test assert against Calls and drive behavior via
// Responses/err without touching a real binary.
type FakeCommandRunner struct {
	Responses []FakeResponse
	Calls     []FakeCall

	// ByCommand, when non-nil, is consulted before Responses: the key is
	// name plus args joined by spaces, for tests that need a specific
	// command to return a specific result rather than following a fixed
	// sequence.
	ByCommand map[string]FakeResponse

	next int
}

// Run implements CommandRunner.
func (f *FakeCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f.RunWithStdin(ctx, name, nil, args...)
}

// RunWithStdin implements StdinCommandRunner.
func (f *FakeCommandRunner) RunWithStdin(_ context.Context, name string, stdin []byte, args ...string) ([]byte, []byte, error) {
	f.Calls = append(f.Calls, FakeCall{Name: name, Args: append([]string(nil), args...), Stdin: stdin})

	if f.ByCommand != nil {
		if resp, ok := f.ByCommand[commandKey(name, args)]; ok {
			return resp.Stdout, resp.Stderr, resp.Err
		}
	}

	if f.next < len(f.Responses) {
		resp := f.Responses[f.next]
		f.next++
		return resp.Stdout, resp.Stderr, resp.Err
	}

	return nil, nil, nil
}

func commandKey(name string, args []string) string {
	key := name
	for _, a := range args {
		key += " " + a
	}
	return key
}
