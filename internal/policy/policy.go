package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/robert-at-pretension-io/hdl-force/internal/facts"
)

//go:embed contract.rego
var contractRego string

const (
	violationsQuery = "data.hdlforce.contract.all_violations"
	summaryQuery    = "data.hdlforce.contract.summary"
)

// Engine evaluates OPA policies against post-lowering fact tables
type Engine struct {
	queries map[string]rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Scope    string `json:"scope,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation
	Summary    Summary
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// NewEmbedded creates an engine from the built-in lowering contract
func NewEmbedded(ctx context.Context) (*Engine, error) {
	return prepare(ctx, []func(*rego.Rego){rego.Module("contract.rego", contractRego)})
}

// New creates a new policy engine, loading policies from the given directory.
// An empty directory selects the embedded contract.
func New(ctx context.Context, policyDir string) (*Engine, error) {
	if policyDir == "" {
		return NewEmbedded(ctx)
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("finding policy files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", policyDir)
	}

	var modules []func(*rego.Rego)
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		modules = append(modules, rego.Module(f, string(content)))
	}
	return prepare(ctx, modules)
}

func prepare(ctx context.Context, modules []func(*rego.Rego)) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}
	for name, q := range map[string]string{"violations": violationsQuery, "summary": summaryQuery} {
		opts := append(append([]func(*rego.Rego){}, modules...), rego.Query(q))
		query, err := rego.New(opts...).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", name, err)
		}
		engine.queries[name] = query
	}
	return engine, nil
}

// Evaluate runs the policies against the fact tables. Violations are
// ordered by file, line and rule.
func (e *Engine) Evaluate(ctx context.Context, tables facts.Tables) (*Result, error) {
	input, err := toInput(tables)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{}
	if err := e.evalInto(ctx, "violations", input, &result.Violations); err != nil {
		return nil, err
	}
	if err := e.evalInto(ctx, "summary", input, &result.Summary); err != nil {
		return nil, err
	}
	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Rule < b.Rule
	})
	return result, nil
}

// evalInto runs a prepared query and decodes the value of its first
// expression into out. An undefined result leaves out untouched.
func (e *Engine) evalInto(ctx context.Context, name string, input map[string]any, out any) error {
	rs, err := e.queries[name].Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", name, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil
	}
	raw, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return fmt.Errorf("encoding %s result: %w", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", name, err)
	}
	return nil
}

// ApplySeverities rewrites violation severities through the configured
// rules map and drops rules set to "off". The summary is recomputed.
func (r *Result) ApplySeverities(severity func(rule, def string) string) {
	kept := r.Violations[:0]
	r.Summary = Summary{}
	for _, v := range r.Violations {
		v.Severity = severity(v.Rule, v.Severity)
		switch v.Severity {
		case "off":
			continue
		case "error":
			r.Summary.Errors++
		case "warning":
			r.Summary.Warnings++
		default:
			r.Summary.Info++
		}
		kept = append(kept, v)
	}
	r.Violations = kept
	r.Summary.TotalViolations = len(kept)
}

// toInput turns the tables into the generic document rego evaluates.
func toInput(tables facts.Tables) (map[string]any, error) {
	data, err := json.Marshal(tables)
	if err != nil {
		return nil, err
	}
	var input map[string]any
	err = json.Unmarshal(data, &input)
	return input, err
}
