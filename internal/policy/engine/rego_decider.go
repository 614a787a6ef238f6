package engine

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"project-tracker/backend/internal/platform/rbac"
)

const policyPackage = "tracker.access"

//go:embed access.rego
var defaultPolicy string

// DefaultPolicy returns the built-in Rego access policy.
func DefaultPolicy() string {
	return defaultPolicy
}

// ReadPolicyFile loads an operator-supplied Rego policy. The policy must declare package tracker.access
// and define a boolean rule per capability.
func ReadPolicyFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// RegoDecider decides capabilities by evaluating a Rego policy with OPA. Evaluation errors
// fall back to the native rules and are logged.
type RegoDecider struct {
	queries map[rbac.Capability]rego.PreparedEvalQuery
	logger  *slog.Logger
}

var _ rbac.Decider = (*RegoDecider)(nil)

// NewRegoDecider compiles policy (DefaultPolicy when empty) and prepares one query per capability.
func NewRegoDecider(ctx context.Context, policy string, logger *slog.Logger) (*RegoDecider, error) {
	if policy == "" {
		policy = defaultPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler, err := ast.CompileModules(map[string]string{"access.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	d := &RegoDecider{queries: make(map[rbac.Capability]rego.PreparedEvalQuery), logger: logger}
	for _, c := range rbac.Capabilities() {
		pq, err := rego.New(
			rego.Query(fmt.Sprintf("data.%s.%s", policyPackage, c)),
			rego.Compiler(compiler),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("prepare %s: %w", c, err)
		}
		d.queries[c] = pq
	}
	return d, nil
}

// Decide evaluates the capability's rule against f. An undefined rule denies.
func (d *RegoDecider) Decide(ctx context.Context, c rbac.Capability, f rbac.Facts) (bool, error) {
	pq, ok := d.queries[c]
	if !ok {
		return false, nil
	}
	allowed, err := eval(ctx, pq, f)
	if err != nil {
		fallback := rbac.Decide(c, f)
		d.logger.WarnContext(ctx, "rego evaluation failed, using native decision",
			"capability", string(c), "allowed", fallback, "error", err)
		return fallback, nil
	}
	return allowed, nil
}

// HealthCheck evaluates a known-true decision and reports an error if the engine cannot produce it.
func (d *RegoDecider) HealthCheck(ctx context.Context) error {
	pq, ok := d.queries[rbac.HasTeamAccess]
	if !ok {
		return fmt.Errorf("policy query %s not prepared", rbac.HasTeamAccess)
	}
	allowed, err := eval(ctx, pq, rbac.Facts{TeamOwner: true})
	if err != nil {
		return fmt.Errorf("eval access policy: %w", err)
	}
	if !allowed {
		return fmt.Errorf("access policy denied the team owner")
	}
	return nil
}

func eval(ctx context.Context, pq rego.PreparedEvalQuery, f rbac.Facts) (bool, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(buildInput(f)))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

func buildInput(f rbac.Facts) map[string]interface{} {
	return map[string]interface{}{
		"team_owner":          f.TeamOwner,
		"project_manager":     f.ProjectManager,
		"task_assignee":       f.TaskAssignee,
		"task_creator":        f.TaskCreator,
		"global_manager":      f.GlobalManager,
		"role":                string(f.Role),
		"assigned_in_project": f.AssignedInProject,
	}
}
