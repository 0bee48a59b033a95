package generator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// External runs a page compositor as a subprocess. Command is a template
// whose arguments may contain the placeholders {out}, {boxes}, {markers},
// {copy} and {name}. The process must write the image to {out} and the
// ground truth JSON to {boxes}; only its exit status is interpreted.
type External struct {
	Command string
	WorkDir string
	logger  *slog.Logger
}

// NewExternal returns a subprocess generator.
func NewExternal(command, workDir string, logger *slog.Logger) (*External, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("external generator command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &External{Command: command, WorkDir: workDir, logger: logger}, nil
}

// Args expands the command template for req.
func (e *External) Args(req Request, out, boxes string) []string {
	r := strings.NewReplacer(
		"{out}", out,
		"{boxes}", boxes,
		"{markers}", req.Markers.String(),
		"{copy}", strconv.Itoa(req.Copy),
		"{name}", req.Name,
	)
	fields := strings.Fields(e.Command)
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = r.Replace(f)
	}
	return args
}

// Generate implements Generator. The artifact holds paths only; call Load
// to read it.
func (e *External) Generate(ctx context.Context, req Request) (*Artifact, error) {
	dir := req.OutDir
	if dir == "" {
		dir = e.WorkDir
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneratorFailed, err)
	}
	out, err := filepath.Abs(filepath.Join(dir, fmt.Sprintf("copy-%04d.png", req.Copy)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneratorFailed, err)
	}
	boxes := strings.TrimSuffix(out, ".png") + ".json"

	args := e.Args(req, out, boxes)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.WorkDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("running generator", "copy", req.Copy, "args", args)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrGeneratorFailed, args[0], err, tail(stderr.String(), 512))
	}
	return &Artifact{ImagePath: out, BoxesPath: boxes}, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
