package driver

// =============================================================================
// DRIVER: DESIGN FILES IN, LOWERED DESIGNS OUT
// =============================================================================
//
//   scan      config globs -> design documents
//   lower     per design, in parallel: contract check, decode, gate,
//             force lowering, ownership check, fact extraction, write
//   facts     merged tables checked against #FactTables
//   policy    OPA contract over the merged tables
//
// A design that fails is reported in its DesignResult and does not stop
// the others. Infrastructure trouble (cache, timing file) is collected and
// returned as one pipeline error after the result is complete.
// =============================================================================

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/config"
	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/facts"
	"github.com/robert-at-pretension-io/hdl-force/internal/force"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
	"github.com/robert-at-pretension-io/hdl-force/internal/policy"
	"github.com/robert-at-pretension-io/hdl-force/internal/validator"
)

// Driver runs the lowering pipeline over a project.
type Driver struct {
	// Configuration loaded from hdl_force.json
	Config *config.Config

	// Logger receives structured debug tracing. Nil disables it.
	Logger *zap.Logger

	// Progress prints one line per design as it completes
	Progress bool

	// Timing output (JSONL)
	Timing     bool
	TimingPath string

	// KeepDeltas records the fact delta of every lowered design
	KeepDeltas bool

	// Out receives progress lines (default os.Stdout)
	Out io.Writer

	// Optional tool version override (for tests)
	toolVersionOverride string
}

// Result is the structured result of a run. It is serialized as the --json
// output and checked against #LowerOutput.
type Result struct {
	Designs     []DesignResult     `json:"designs"`
	Diagnostics []diag.Diagnostic  `json:"diagnostics"`
	Violations  []policy.Violation `json:"violations"`
	Summary     Summary            `json:"summary"`

	// Tables are the merged post-lowering fact tables.
	Tables facts.Tables `json:"-"`

	// Deltas maps design files to their pre/post fact delta when
	// KeepDeltas is set.
	Deltas map[string]facts.Delta `json:"-"`
}

// DesignResult describes what happened to one design document.
type DesignResult struct {
	File   string      `json:"file"`
	Output string      `json:"output,omitempty"`
	Cached bool        `json:"cached"`
	Error  string      `json:"error,omitempty"`
	Stats  force.Stats `json:"stats"`
}

// Summary provides aggregate counts
type Summary struct {
	Designs    int `json:"designs"`
	Lowered    int `json:"lowered"`
	Skipped    int `json:"skipped"`
	Cached     int `json:"cached"`
	Failed     int `json:"failed"`
	Errors     int `json:"errors"`
	Warnings   int `json:"warnings"`
	Violations int `json:"violations"`
}

// Failed reports whether the run produced a failed design, an error
// diagnostic or an error-level policy violation.
func (r *Result) Failed() bool {
	if r.Summary.Failed > 0 || r.Summary.Errors > 0 {
		return true
	}
	for _, v := range r.Violations {
		if v.Severity == diag.SeverityError {
			return true
		}
	}
	return false
}

// New creates a driver with the given configuration
func New(cfg *config.Config) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Driver{Config: cfg}
}

// outcome is what one lowering goroutine hands back.
type outcome struct {
	index  int
	result DesignResult
	diags  []diag.Diagnostic
	tables facts.Tables
	delta  *facts.Delta
	errs   []error
}

// shared is the per-run state every lowering goroutine reads.
type shared struct {
	root      string
	cache     *loweredCache
	validator *validator.Validator
	timing    *timingRecorder
}

// Run lowers every design under rootPath. rootPath may also name a single
// design document.
func (d *Driver) Run(ctx context.Context, rootPath string) (*Result, error) {
	runStart := time.Now()
	log := d.logger()
	pipelineErrs := make([]error, 0)
	recordPipelineErr := func(err error) {
		pipelineErrs = append(pipelineErrs, err)
	}

	if d.Config == nil {
		cfg, err := config.Load(rootPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		d.Config = cfg
	}
	cfg := d.Config

	timing := newTimingRecorder(runStart, d.resolveTimingPath(rootPath))
	if err := timing.Err(); err != nil {
		recordPipelineErr(fmt.Errorf("timing output disabled: %w", err))
	}
	defer timing.Close()

	// 1. Find design documents
	stepStart := time.Now()
	files, projectRoot, err := d.scan(rootPath)
	if err != nil {
		return nil, err
	}
	timing.RecordStage("scan", stepStart, "")
	log.Debug("scanned designs", zap.String("root", projectRoot), zap.Int("files", len(files)))

	// 2. Lower each design in parallel
	stepStart = time.Now()
	env := &shared{root: projectRoot, timing: timing}
	if cfg.ContractEnabled() {
		v, err := validator.New()
		if err != nil {
			return nil, fmt.Errorf("CRITICAL: failed to initialize design validator: %w", err)
		}
		env.validator = v
	}
	if cacheEnabled(cfg) {
		version := d.toolVersionOverride
		if version == "" {
			version = computeToolVersion()
		}
		env.cache = newLoweredCache(resolveCacheDir(projectRoot, cfg), version, configHash(cfg))
		if err := env.cache.Load(); err != nil {
			recordPipelineErr(fmt.Errorf("cache disabled: %w", err))
			env.cache = nil
		}
	}

	outcomes := d.lowerAll(ctx, env, files)
	if env.cache != nil {
		if err := env.cache.Save(); err != nil {
			recordPipelineErr(fmt.Errorf("cache save failed: %w", err))
		}
	}
	timing.RecordStage("lower", stepStart, "")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Designs:     make([]DesignResult, 0, len(outcomes)),
		Diagnostics: []diag.Diagnostic{},
		Violations:  []policy.Violation{},
	}
	if d.KeepDeltas {
		result.Deltas = make(map[string]facts.Delta)
	}
	var allTables []facts.Tables
	for _, o := range outcomes {
		result.Designs = append(result.Designs, o.result)
		result.Diagnostics = append(result.Diagnostics, o.diags...)
		allTables = append(allTables, o.tables)
		if o.delta != nil {
			result.Deltas[o.result.File] = *o.delta
		}
		for _, err := range o.errs {
			recordPipelineErr(err)
		}
		result.Summary.Designs++
		switch {
		case o.result.Error != "":
			result.Summary.Failed++
		case o.result.Cached:
			result.Summary.Cached++
		case o.result.Stats.Skipped:
			result.Summary.Skipped++
		default:
			result.Summary.Lowered++
		}
	}
	result.Diagnostics = diag.Sorted(result.Diagnostics)
	for _, dg := range result.Diagnostics {
		switch dg.Severity {
		case diag.SeverityError:
			result.Summary.Errors++
		case diag.SeverityWarning:
			result.Summary.Warnings++
		}
	}
	result.Tables = facts.Merge(allTables...)

	// 3. Validate the merged fact tables
	stepStart = time.Now()
	if cfg.ContractEnabled() {
		factsValidator, err := validator.NewFactsValidator()
		if err != nil {
			return nil, fmt.Errorf("CRITICAL: failed to initialize facts validator: %w", err)
		}
		if err := factsValidator.Validate(result.Tables); err != nil {
			return nil, fmt.Errorf("CRITICAL: fact table contract violation: %w", err)
		}
	}
	timing.RecordStage("facts_validate", stepStart, "")

	if dbPath := cfg.FactsDBPath(projectRoot); dbPath != "" {
		stepStart = time.Now()
		if err := facts.WriteStore(ctx, dbPath, result.Tables); err != nil {
			recordPipelineErr(fmt.Errorf("facts export failed: %w", err))
		}
		timing.RecordStage("facts_export", stepStart, "")
	}

	// 4. Policy
	stepStart = time.Now()
	engine, err := policy.New(ctx, d.policyDir(projectRoot))
	if err != nil {
		return nil, fmt.Errorf("initialize policy engine: %w", err)
	}
	policyResult, err := engine.Evaluate(ctx, result.Tables)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	policyResult.ApplySeverities(cfg.GetRuleSeverity)
	if policyResult.Violations != nil {
		result.Violations = policyResult.Violations
	}
	result.Summary.Violations = policyResult.Summary.TotalViolations
	timing.RecordStage("policy", stepStart, "")
	timing.RecordStage("total", runStart, "")

	log.Debug("run complete",
		zap.Int("designs", result.Summary.Designs),
		zap.Int("lowered", result.Summary.Lowered),
		zap.Int("violations", result.Summary.Violations),
		zap.Duration("elapsed", time.Since(runStart)))

	if len(pipelineErrs) > 0 {
		return result, fmt.Errorf("pipeline errors:\n%s", formatPipelineErrors(pipelineErrs))
	}
	return result, nil
}

func (d *Driver) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named("driver")
}

func (d *Driver) out() io.Writer {
	if d.Out == nil {
		return os.Stdout
	}
	return d.Out
}

func (d *Driver) policyDir(projectRoot string) string {
	dir := d.Config.Analysis.PolicyDir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(projectRoot, dir)
	}
	return dir
}

// scan returns the design documents to lower and the project root that
// relative configuration paths resolve against.
func (d *Driver) scan(rootPath string) ([]string, string, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, "", fmt.Errorf("scanning designs: %w", err)
	}
	if !info.IsDir() {
		abs, err := filepath.Abs(rootPath)
		if err != nil {
			return nil, "", fmt.Errorf("scanning designs: %w", err)
		}
		return []string{abs}, filepath.Dir(abs), nil
	}
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, "", fmt.Errorf("scanning designs: %w", err)
	}
	files, err := d.Config.ResolveDesigns(root)
	if err != nil {
		return nil, "", fmt.Errorf("scanning designs: %w", err)
	}
	// Generated trees are never inputs: lowered outputs and the cache.
	sep := string(filepath.Separator)
	skipDirs := []string{filepath.Clean(resolveCacheDir(root, d.Config)) + sep}
	if d.Config.Output.Dir != "" {
		outDir := filepath.Dir(d.Config.OutputPath(root, filepath.Join(root, "x.json")))
		skipDirs = append(skipDirs, filepath.Clean(outDir)+sep)
	}
	var kept []string
	for _, f := range files {
		if strings.HasSuffix(f, d.Config.Output.Suffix+".json") || strings.HasSuffix(f, ".facts.json") {
			continue
		}
		if underAny(f, skipDirs) {
			continue
		}
		kept = append(kept, f)
	}
	return kept, root, nil
}

func underAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

// lowerAll fans out one goroutine per design, bounded by MaxParallelFiles,
// and returns the outcomes in input order.
func (d *Driver) lowerAll(ctx context.Context, env *shared, files []string) []outcome {
	limit := d.Config.Analysis.MaxParallelFiles
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	var progressMu sync.Mutex
	progress := 0
	if d.Progress {
		fmt.Fprintf(d.out(), "\n=== Lowering Progress ===\n")
	}
	results := make(chan outcome, len(files))

	for i, file := range files {
		wg.Add(1)
		go func(i int, f string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			start := time.Now()
			o := d.lowerDesign(env, f)
			o.index = i
			status := "lowered"
			switch {
			case o.result.Error != "":
				status = "failed"
			case o.result.Cached:
				status = "cache_hit"
			case o.result.Stats.Skipped:
				status = "skipped"
			}
			env.timing.RecordFile("lower", f, status, start)
			if d.Progress {
				emitProgress(d.out(), &progressMu, &progress, len(files), o.result, status, time.Since(start))
			}
			results <- o
		}(i, file)
	}

	wg.Wait()
	close(results)

	var outcomes []outcome
	for o := range results {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	return outcomes
}

// lowerDesign runs the per-design stages. Errors that make the design
// unusable end up in result.Error; cache trouble is a pipeline error.
func (d *Driver) lowerDesign(env *shared, file string) outcome {
	cfg := d.Config
	log := d.logger().With(zap.String("file", file))
	o := outcome{result: DesignResult{File: file}}
	fail := func(err error) outcome {
		o.result.Error = err.Error()
		o.tables = facts.Tables{}
		log.Debug("design failed", zap.Error(err))
		return o
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fail(fmt.Errorf("reading design: %w", err))
	}

	contentHash := ""
	if env.cache != nil {
		contentHash = hashBytes(data)
		cached, ok, err := env.cache.Get(file, contentHash)
		if err != nil {
			o.errs = append(o.errs, fmt.Errorf("cache read failed for %s: %w", file, err))
		} else if ok {
			o.result.Output = cached.Output
			o.result.Cached = true
			o.result.Stats = cached.Stats
			o.diags = cached.Diagnostics
			o.tables = cached.Tables
			log.Debug("cache hit")
			return o
		}
	}

	if env.validator != nil {
		if err := env.validator.ValidateJSON(data); err != nil {
			return fail(fmt.Errorf("design contract violation: %w", err))
		}
	}
	var doc netlist.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail(fmt.Errorf("parsing design: %w", err))
	}
	nl, err := netlist.Decode(&doc, file)
	if err != nil {
		return fail(fmt.Errorf("decoding design: %w", err))
	}

	var before facts.Tables
	if d.KeepDeltas {
		before = facts.BuildTables(nl, file, nil)
	}

	sink := diag.NewCollector(func(code diag.Code, def string) string {
		return cfg.GetRuleSeverity(string(code), def)
	})
	stats, err := force.Run(nl, sink, force.Options{Logger: d.Logger, Verify: cfg.OwnershipEnabled()})
	if err != nil {
		if force.IsInvariant(err) {
			sink.Report(diag.Diagnostic{Code: diag.CodeInternal, File: file, Message: err.Error()})
			o.diags = sink.Diagnostics()
		}
		return fail(fmt.Errorf("lowering: %w", err))
	}
	o.result.Stats = stats
	o.diags = sink.Diagnostics()
	o.tables = facts.BuildTables(nl, file, o.diags)
	if d.KeepDeltas {
		delta := facts.ComputeDelta(before, o.tables)
		o.delta = &delta
	}

	if !stats.Skipped {
		out := cfg.OutputPath(env.root, file)
		if err := writeJSONAtomic(out, netlist.Encode(nl)); err != nil {
			return fail(fmt.Errorf("writing lowered design: %w", err))
		}
		o.result.Output = out
		if cfg.Output.WriteFacts {
			if err := writeJSONAtomic(cfg.FactsPath(env.root, file), o.tables); err != nil {
				return fail(fmt.Errorf("writing facts: %w", err))
			}
		}
	}
	log.Debug("design lowered",
		zap.Bool("skipped", stats.Skipped),
		zap.Int("forces", stats.ForcesLowered),
		zap.Int("releases", stats.ReleasesLowered),
		zap.Int("diagnostics", len(o.diags)))

	if env.cache != nil && contentHash != "" {
		err := env.cache.Put(file, contentHash, cachedDesign{
			Output:      o.result.Output,
			Stats:       o.result.Stats,
			Diagnostics: o.diags,
			Tables:      o.tables,
		})
		if err != nil {
			o.errs = append(o.errs, fmt.Errorf("cache write failed for %s: %w", file, err))
		}
	}
	return o
}

// ClearCache removes the lowered-output cache of a project.
func (d *Driver) ClearCache(rootPath string) error {
	if d.Config == nil {
		return errors.New("clear cache: no configuration")
	}
	return newLoweredCache(resolveCacheDir(rootPath, d.Config), "", "").Clear()
}

func formatPipelineErrors(errs []error) string {
	var b strings.Builder
	for i, err := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func emitProgress(w io.Writer, mu *sync.Mutex, progress *int, total int, r DesignResult, status string, duration time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	*progress = *progress + 1
	fmt.Fprintf(w, "  [%d/%d] %s (%s, %s)\n", *progress, total, r.File, status, formatDuration(duration))
	if r.Error != "" {
		fmt.Fprintf(w, "    error: %s\n", r.Error)
		return
	}
	if !r.Stats.Skipped {
		fmt.Fprintf(w, "    forces=%d releases=%d shadow_sets=%d reads=%d\n",
			r.Stats.ForcesLowered, r.Stats.ReleasesLowered, r.Stats.ShadowSets, r.Stats.ReadsRedirected)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.2fm", d.Minutes())
	}
}
