// Package gitstate builds the GitStatus snapshot the loop refreshes at task
// start and after git actions (§4.G). Grounded on the porcelain-parsing
// idiom internal/tool/builtin/git_info.go already uses for git subprocess
// calls, applied to `git status --porcelain -b` instead of the read-only
// query subcommands that package dispatches as a tool.
package gitstate

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ephraim-dev/ephraim/internal/state"
)

const refreshTimeout = 10 * time.Second

// Refresh shells out to git in workspaceDir and builds a point-in-time
// GitStatus. A non-repository workspace is not an error: it returns a nil
// snapshot so the brief simply omits a git summary.
func Refresh(workspaceDir string) (*state.GitStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain", "-b")
	cmd.Dir = workspaceDir
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, nil
	}

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "##") {
		return nil, nil
	}

	gs := &state.GitStatus{Clean: true}
	header := strings.TrimPrefix(lines[0], "## ")
	if header == "HEAD (no branch)" {
		gs.Branch = "(detached)"
	} else if idx := strings.Index(header, "..."); idx >= 0 {
		gs.Branch = header[:idx]
		gs.RemotePresent = true
	} else {
		gs.Branch = strings.TrimSuffix(header, " [no branch]")
	}

	for _, line := range lines[1:] {
		if len(line) < 3 {
			continue
		}
		x, y, path := line[0], line[1], strings.TrimSpace(line[3:])
		gs.Clean = false
		switch {
		case x == '?' && y == '?':
			gs.Untracked = append(gs.Untracked, path)
		case x == 'D' || y == 'D':
			gs.Deleted = append(gs.Deleted, path)
		default:
			if x != ' ' {
				gs.Staged = append(gs.Staged, path)
			}
			if y == 'M' {
				gs.Modified = append(gs.Modified, path)
			}
		}
	}
	return gs, nil
}
