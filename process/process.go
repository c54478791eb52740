// Package process resolves and monitors the client process a session
// attaches to.
package process

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gops "github.com/shirou/gopsutil/v3/process"
)

// ErrNotFound is returned when no process matches the requested PID or name.
var ErrNotFound = errors.New("process not found")

// DefaultClientName is the executable name of the game client.
const DefaultClientName = "PlanetSide.exe"

// Target identifies the process to attach to.
type Target struct {
	PID  uint32
	Name string
}

func (t Target) String() string {
	if t.Name == "" {
		return fmt.Sprintf("pid %d", t.PID)
	}
	return fmt.Sprintf("%s (pid %d)", t.Name, t.PID)
}

// Lookup resolves pid to a Target.
func Lookup(ctx context.Context, pid uint32) (Target, error) {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, gops.ErrorProcessNotRunning) {
			return Target{}, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
		}
		return Target{}, fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		// The process may have exited between the two calls; a nameless
		// target is still attachable.
		name = ""
	}
	return Target{PID: pid, Name: name}, nil
}

// Alive reports whether pid refers to a running process.
func Alive(ctx context.Context, pid uint32) (bool, error) {
	return gops.PidExistsWithContext(ctx, int32(pid))
}

// FindByName returns every running process whose executable name matches
// name case-insensitively, ordered by PID.
func FindByName(ctx context.Context, name string) ([]Target, error) {
	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var out []Target
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(pname, name) {
			out = append(out, Target{PID: uint32(p.Pid), Name: pname})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// Resolve picks exactly one target by name. It fails when none or several
// processes match.
func Resolve(ctx context.Context, name string) (Target, error) {
	targets, err := FindByName(ctx, name)
	if err != nil {
		return Target{}, err
	}
	switch len(targets) {
	case 0:
		return Target{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	case 1:
		return targets[0], nil
	default:
		pids := make([]string, len(targets))
		for i, t := range targets {
			pids[i] = fmt.Sprint(t.PID)
		}
		return Target{}, fmt.Errorf("%d processes named %s (pids %s); pass --pid", len(targets), name, strings.Join(pids, ", "))
	}
}
