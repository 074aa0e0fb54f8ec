package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/robert-at-pretension-io/hdl-force/internal/config"
	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/facts"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

const forcedDesign = `{
  "name": "dut",
  "has_forceable_signals": true,
  "modules": [
    {"name": "dut", "vars": [
      {"name": "sig", "kind": "net", "width": 4, "ranged": true, "line": 1},
      {"name": "src", "kind": "variable", "width": 4, "ranged": true, "line": 2},
      {"name": "obs", "kind": "variable", "width": 4, "ranged": true, "line": 3}
    ]}
  ],
  "scopes": [
    {"name": "top", "module": "dut", "blocks": [
      {"kind": "comb", "label": "drive", "line": 4, "stmts": [
        {"op": "assignw", "lhs": {"op": "ref", "signal": "sig"}, "rhs": {"op": "ref", "signal": "src"}, "line": 4}
      ]},
      {"kind": "process", "label": "stim", "line": 5, "stmts": [
        {"op": "force", "lhs": {"op": "ref", "signal": "sig"}, "rhs": {"op": "const", "width": 4, "value": 9}, "line": 6},
        {"op": "assign", "lhs": {"op": "ref", "signal": "obs"}, "rhs": {"op": "ref", "signal": "sig"}, "line": 7},
        {"op": "release", "lhs": {"op": "ref", "signal": "sig"}, "line": 8}
      ]}
    ]}
  ]
}`

const plainDesign = `{
  "name": "plain",
  "has_forceable_signals": false,
  "modules": [
    {"name": "plain", "vars": [
      {"name": "a", "kind": "variable", "width": 1, "line": 1},
      {"name": "b", "kind": "net", "width": 1, "line": 2}
    ]}
  ],
  "scopes": [
    {"name": "top", "module": "plain", "blocks": [
      {"kind": "comb", "stmts": [
        {"op": "assignw", "lhs": {"op": "ref", "signal": "b"}, "rhs": {"op": "ref", "signal": "a"}, "line": 3}
      ]}
    ]}
  ]
}`

const primaryIODesign = `{
  "name": "io",
  "has_forceable_signals": true,
  "modules": [
    {"name": "io", "vars": [
      {"name": "pin", "kind": "net", "width": 1, "primary_io": true, "line": 1}
    ]}
  ],
  "scopes": [
    {"name": "top", "module": "io", "blocks": [
      {"kind": "initial", "stmts": [
        {"op": "force", "lhs": {"op": "ref", "signal": "pin"}, "rhs": {"op": "const", "width": 1, "value": 1}, "line": 2}
      ]}
    ]}
  ]
}`

func writeDesign(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write design: %v", err)
	}
	return path
}

func testConfig(cacheEnabled bool) *config.Config {
	cfg := config.DefaultConfig()
	enabled := cacheEnabled
	cfg.Analysis.Cache.Enabled = &enabled
	return cfg
}

func newTestDriver(cfg *config.Config) *Driver {
	d := New(cfg)
	d.toolVersionOverride = "test"
	d.Out = &bytes.Buffer{}
	return d
}

func runForTest(t *testing.T, d *Driver, root string) *Result {
	t.Helper()
	res, err := d.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestRunLowersForcedDesign(t *testing.T) {
	dir := t.TempDir()
	file := writeDesign(t, dir, "dut.json", forcedDesign)

	d := newTestDriver(testConfig(false))
	d.KeepDeltas = true
	res := runForTest(t, d, dir)

	want := Summary{Designs: 1, Lowered: 1}
	if diff := cmp.Diff(want, res.Summary); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
	dr := res.Designs[0]
	if dr.File != file {
		t.Errorf("file = %q, want %q", dr.File, file)
	}
	if dr.Output != filepath.Join(dir, "dut.lowered.json") {
		t.Errorf("output = %q", dr.Output)
	}
	if dr.Stats.ForcesLowered != 1 || dr.Stats.ReleasesLowered != 1 || dr.Stats.ShadowSets != 1 {
		t.Errorf("stats = %+v", dr.Stats)
	}
	if len(res.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", res.Violations)
	}

	doc, err := netlist.ReadDocument(dr.Output)
	if err != nil {
		t.Fatalf("read lowered design: %v", err)
	}
	nl, err := netlist.Decode(doc, dr.Output)
	if err != nil {
		t.Fatalf("decode lowered design: %v", err)
	}
	nl.Walk(nl.Root(), func(id netlist.NodeID) bool {
		if k := nl.Kind(id); k == netlist.KindAssignForce || k == netlist.KindRelease {
			t.Errorf("lowered design still contains %s", k)
		}
		return true
	})

	delta, ok := res.Deltas[file]
	if !ok {
		t.Fatal("missing delta for design")
	}
	var added []string
	for _, row := range delta.Added.ShadowSets {
		added = append(added, row.Signal)
	}
	if diff := cmp.Diff([]string{"sig"}, added); diff != "" {
		t.Errorf("added shadow sets (-want +got):\n%s", diff)
	}
}

func TestRunSkipsUngatedDesign(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "plain.json", plainDesign)

	res := runForTest(t, newTestDriver(testConfig(false)), dir)
	if res.Summary.Skipped != 1 || res.Summary.Lowered != 0 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if res.Designs[0].Output != "" {
		t.Errorf("skipped design has output %q", res.Designs[0].Output)
	}
	if _, err := os.Stat(filepath.Join(dir, "plain.lowered.json")); !os.IsNotExist(err) {
		t.Errorf("skipped design was written: %v", err)
	}
}

func TestRunSingleFile(t *testing.T) {
	dir := t.TempDir()
	file := writeDesign(t, dir, "dut.json", forcedDesign)
	writeDesign(t, dir, "plain.json", plainDesign)

	res := runForTest(t, newTestDriver(testConfig(false)), file)
	if len(res.Designs) != 1 || res.Designs[0].File != file {
		t.Fatalf("designs = %+v", res.Designs)
	}
}

func TestRunReportsBrokenDesign(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "a_broken.json", `{"name": "broken", "modules": []}`)
	writeDesign(t, dir, "b_dut.json", forcedDesign)

	res := runForTest(t, newTestDriver(testConfig(false)), dir)
	if res.Summary.Failed != 1 || res.Summary.Lowered != 1 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if !strings.Contains(res.Designs[0].Error, "contract violation") {
		t.Errorf("error = %q", res.Designs[0].Error)
	}
	if !res.Failed() {
		t.Error("result with a failed design should report failure")
	}
}

func TestRunUnknownSignalFailsDecode(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(forcedDesign, `"rhs": {"op": "ref", "signal": "src"}`, `"rhs": {"op": "ref", "signal": "ghost"}`, 1)
	writeDesign(t, dir, "dut.json", bad)

	res := runForTest(t, newTestDriver(testConfig(false)), dir)
	if res.Summary.Failed != 1 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if !strings.Contains(res.Designs[0].Error, "decoding design") {
		t.Errorf("error = %q", res.Designs[0].Error)
	}
}

func TestRunPrimaryIODiagnostic(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "io.json", primaryIODesign)

	res := runForTest(t, newTestDriver(testConfig(false)), dir)
	if res.Summary.Errors != 1 {
		t.Fatalf("summary = %+v, diagnostics = %+v", res.Summary, res.Diagnostics)
	}
	if res.Diagnostics[0].Code != diag.CodeForcePrimaryIO {
		t.Errorf("code = %s", res.Diagnostics[0].Code)
	}
	if !res.Failed() {
		t.Error("error diagnostic should fail the run")
	}
}

func TestRunRuleSeverityOverride(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "io.json", primaryIODesign)

	cfg := testConfig(false)
	cfg.Rules = map[string]string{string(diag.CodeForcePrimaryIO): "warning"}
	res := runForTest(t, newTestDriver(cfg), dir)
	if res.Summary.Errors != 0 || res.Summary.Warnings != 1 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if res.Failed() {
		t.Error("warnings alone should not fail the run")
	}
}

func TestRunWritesFacts(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)

	cfg := testConfig(false)
	cfg.Output.WriteFacts = true
	cfg.Output.Dir = "out"
	res := runForTest(t, newTestDriver(cfg), dir)

	if res.Designs[0].Output != filepath.Join(dir, "out", "dut.lowered.json") {
		t.Errorf("output = %q", res.Designs[0].Output)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "out", "dut.lowered.facts.json"))
	if err != nil {
		t.Fatalf("read facts: %v", err)
	}
	var tables facts.Tables
	if err := json.Unmarshal(raw, &tables); err != nil {
		t.Fatalf("parse facts: %v", err)
	}
	if diff := cmp.Diff(res.Tables.Counts(), tables.Counts()); diff != "" {
		t.Errorf("facts file differs from result tables (-result +file):\n%s", diff)
	}

	// A second run must not pick up its own outputs.
	again := runForTest(t, newTestDriver(cfg), dir)
	if again.Summary.Designs != 1 {
		t.Errorf("second run saw %d designs", again.Summary.Designs)
	}
}

func TestRunCacheHit(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)

	cfg := testConfig(true)
	first := runForTest(t, newTestDriver(cfg), dir)
	if first.Summary.Cached != 0 || first.Summary.Lowered != 1 {
		t.Fatalf("first run summary = %+v", first.Summary)
	}

	second := runForTest(t, newTestDriver(cfg), dir)
	if second.Summary.Cached != 1 {
		t.Fatalf("second run summary = %+v", second.Summary)
	}
	opts := cmpopts.IgnoreFields(DesignResult{}, "Cached")
	if diff := cmp.Diff(first.Designs, second.Designs, opts); diff != "" {
		t.Errorf("cached result differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Tables.Counts(), second.Tables.Counts()); diff != "" {
		t.Errorf("cached tables differ (-first +second):\n%s", diff)
	}

	// Changing the design invalidates its entry.
	writeDesign(t, dir, "dut.json", strings.Replace(forcedDesign, `"value": 9`, `"value": 3`, 1))
	third := runForTest(t, newTestDriver(cfg), dir)
	if third.Summary.Cached != 0 || third.Summary.Lowered != 1 {
		t.Fatalf("third run summary = %+v", third.Summary)
	}
}

func TestRunCacheMissOnToolVersion(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)
	cfg := testConfig(true)
	runForTest(t, newTestDriver(cfg), dir)

	d := newTestDriver(cfg)
	d.toolVersionOverride = "other"
	res := runForTest(t, d, dir)
	if res.Summary.Cached != 0 {
		t.Fatalf("summary = %+v", res.Summary)
	}
}

func TestRunIgnoresCustomCacheDir(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)
	cfg := testConfig(true)
	cfg.Analysis.Cache.Dir = "build_cache"

	first := runForTest(t, newTestDriver(cfg), dir)
	if first.Summary.Designs != 1 || first.Summary.Lowered != 1 {
		t.Fatalf("first run summary = %+v", first.Summary)
	}
	if _, err := os.Stat(filepath.Join(dir, "build_cache", "index.json")); err != nil {
		t.Fatalf("cache index missing: %v", err)
	}

	second := runForTest(t, newTestDriver(cfg), dir)
	want := Summary{Designs: 1, Cached: 1}
	got := Summary{Designs: second.Summary.Designs, Cached: second.Summary.Cached, Failed: second.Summary.Failed}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("second run summary (-want +got):\n%s", diff)
	}
	if second.Failed() {
		t.Errorf("second run failed: %+v", second.Designs)
	}
}

func TestClearCache(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)
	cfg := testConfig(true)
	runForTest(t, newTestDriver(cfg), dir)

	cacheDir := resolveCacheDir(dir, cfg)
	if _, err := os.Stat(filepath.Join(cacheDir, "index.json")); err != nil {
		t.Fatalf("cache index missing: %v", err)
	}
	if err := newTestDriver(cfg).ClearCache(dir); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Errorf("cache dir still present: %v", err)
	}
}

func TestProgressOutput(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)

	d := newTestDriver(testConfig(false))
	d.Progress = true
	var buf bytes.Buffer
	d.Out = &buf
	runForTest(t, d, dir)

	out := buf.String()
	if !strings.Contains(out, "=== Lowering Progress ===") {
		t.Errorf("missing progress header:\n%s", out)
	}
	if !strings.Contains(out, "[1/1]") || !strings.Contains(out, "lowered") {
		t.Errorf("missing progress line:\n%s", out)
	}
}

func TestWriteTextAndJSON(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "io.json", primaryIODesign)
	writeDesign(t, dir, "dut.json", forcedDesign)
	res := runForTest(t, newTestDriver(testConfig(false)), dir)

	var text bytes.Buffer
	WriteText(&text, res)
	for _, want := range []string{"=== Diagnostics ===", "=== Lowered Designs ===", "=== Lowering Summary ===", "[force-primary-io]"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, text.String())
		}
	}

	var out bytes.Buffer
	if err := WriteJSON(&out, res); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded struct {
		Designs []DesignResult `json:"designs"`
		Summary Summary        `json:"summary"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("parse json output: %v", err)
	}
	if diff := cmp.Diff(res.Summary, decoded.Summary); diff != "" {
		t.Errorf("summary (-want +got):\n%s", diff)
	}
	if len(decoded.Designs) != 2 {
		t.Errorf("designs = %d", len(decoded.Designs))
	}
}

func TestFormatPipelineErrors(t *testing.T) {
	got := formatPipelineErrors([]error{os.ErrNotExist, os.ErrPermission})
	want := "- file does not exist\n- permission denied"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunExportsFactsDB(t *testing.T) {
	dir := t.TempDir()
	writeDesign(t, dir, "dut.json", forcedDesign)

	cfg := testConfig(false)
	cfg.Output.FactsDB = "facts.db"
	res := runForTest(t, newTestDriver(cfg), dir)

	db, err := facts.OpenStore(filepath.Join(dir, "facts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM shadow_sets`).Scan(&n); err != nil {
		t.Fatalf("query store: %v", err)
	}
	if n != len(res.Tables.ShadowSets) || n != 1 {
		t.Errorf("shadow_sets rows = %d, result has %d", n, len(res.Tables.ShadowSets))
	}
}
