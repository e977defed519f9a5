package steps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"go.uber.org/zap"
)

// Shell runs a command through sh -c. A leading "-" ignores a non-zero exit.
// When Capture is set, the trimmed combined output is stored under that name.
type Shell struct {
	base
	Command string
	Dir     string
	Capture string
}

func NewShell(name, command string) *Shell {
	if name == "" {
		name = "shell: " + command
	}
	return &Shell{base: base{name: name}, Command: command}
}

func (s *Shell) Clone() step.Step {
	c := *s
	return &c
}

func (s *Shell) ResolveExpressions(resolve func(string) string) {
	s.Command = resolve(s.Command)
	s.Dir = resolve(s.Dir)
}

func (s *Shell) Execute(ctx context.Context, sc step.Context, log *zap.Logger) (bool, error) {
	command := strings.TrimSpace(s.Command)
	if command == "" {
		return true, nil
	}

	ignoreError := strings.HasPrefix(command, "-")
	if ignoreError {
		command = strings.TrimSpace(strings.TrimPrefix(command, "-"))
	}
	command = localExecutable(command, s.Dir)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.Dir
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		log.Debug("shell output", zap.String("command", command), zap.ByteString("output", output))
	}
	if s.Capture != "" && sc != nil {
		sc.Set(s.Capture, strings.TrimSpace(string(output)))
	}
	if err != nil && !ignoreError {
		return false, fmt.Errorf("shell command failed: %s: %v\nOutput: %s", command, err, output)
	}
	return true, nil
}

// localExecutable rewrites a leading ./script or bare script name that
// exists in dir but not on PATH into a path under dir.
func localExecutable(command, dir string) string {
	if dir == "" {
		return command
	}
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return command
	}
	exe := parts[0]
	switch {
	case strings.HasPrefix(exe, "./") || strings.HasPrefix(exe, "../"):
		parts[0] = filepath.Join(dir, exe)
	case filepath.IsAbs(exe) || inPath(exe):
		return command
	default:
		candidate := filepath.Join(dir, exe)
		if _, err := os.Stat(candidate); err != nil {
			return command
		}
		parts[0] = candidate
	}
	return strings.Join(parts, " ")
}

func inPath(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
