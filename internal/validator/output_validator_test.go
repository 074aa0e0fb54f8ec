package validator

import "testing"

func TestOutputValidator(t *testing.T) {
	v, err := NewOutputValidator()
	if err != nil {
		t.Fatalf("new output validator: %v", err)
	}

	stats := map[string]any{
		"skipped": false, "shadowed_signals": 1, "shadow_sets": 1,
		"forces_lowered": 1, "releases_lowered": 0, "reads_redirected": 2, "diagnostics": 0,
	}
	summary := map[string]any{
		"designs": 1, "lowered": 1, "skipped": 0, "cached": 0,
		"failed": 0, "errors": 0, "warnings": 0, "violations": 0,
	}
	good := map[string]any{
		"designs":     []any{map[string]any{"file": "a.json", "output": "a.lowered.json", "cached": false, "stats": stats}},
		"diagnostics": []any{},
		"violations":  []any{},
		"summary":     summary,
	}
	if err := v.Validate(good); err != nil {
		t.Fatalf("valid output rejected: %v", err)
	}

	bad := map[string]any{
		"designs":     []any{},
		"diagnostics": []any{map[string]any{"code": "force-primary-io", "severity": "fatal", "line": 1, "message": "m"}},
		"violations":  []any{},
		"summary":     summary,
	}
	if err := v.Validate(bad); err == nil {
		t.Fatal("expected unknown severity to be rejected")
	}
}
