// Package solver adapts the external kinetics integrator. Each solve is
// one subprocess invocation: the request goes to stdin as JSON, the
// converged profile comes back on stdout.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/LCLUCam/VULCAN/domain"
)

// ExecSolver runs the integrator binary. The same binary serves both
// solve and equilibrium requests, selected by the mode field.
type ExecSolver struct {
	command []string
}

func NewExecSolver(command []string) (*ExecSolver, error) {
	if len(command) == 0 {
		return nil, errors.New("integrator command is required")
	}
	return &ExecSolver{command: command}, nil
}

type execRequest struct {
	Mode    string           `json:"mode"`
	Config  domain.RunConfig `json:"config"`
	Column  string           `json:"column"`
	Initial *domain.Profile  `json:"initial,omitempty"`
}

func (s *ExecSolver) Solve(ctx context.Context, cfg domain.RunConfig, col domain.ColumnID, initial domain.Profile) (domain.Profile, error) {
	return s.invoke(ctx, execRequest{Mode: "solve", Config: cfg, Column: col.String(), Initial: &initial})
}

func (s *ExecSolver) Equilibrium(ctx context.Context, cfg domain.RunConfig, col domain.ColumnID) (domain.Profile, error) {
	return s.invoke(ctx, execRequest{Mode: "equilibrium", Config: cfg, Column: col.String()})
}

func (s *ExecSolver) invoke(ctx context.Context, req execRequest) (domain.Profile, error) {
	if s == nil || len(s.command) == 0 {
		return domain.Profile{}, errors.New("exec solver not initialized")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("encode integrator request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.Profile{}, ctx.Err()
		}
		return domain.Profile{}, classifyFailure(stderr.String(), err)
	}
	return domain.DecodeProfile(stdout.Bytes())
}

// classifyFailure maps integrator diagnostics onto the error taxonomy.
// The markers match what the integrator prints before a non-zero exit.
func classifyFailure(stderr string, err error) error {
	diag := strings.ToLower(stderr)
	switch {
	case strings.Contains(diag, "diverg"):
		return fmt.Errorf("%w: %s", domain.ErrSolverDivergence, firstLine(stderr))
	case strings.Contains(diag, "negative density"), strings.Contains(diag, "invalid initial"):
		return fmt.Errorf("%w: %s", domain.ErrInvalidInitialCondition, firstLine(stderr))
	default:
		return fmt.Errorf("integrator failed: %w: %s", err, firstLine(stderr))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
