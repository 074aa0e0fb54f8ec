package diag

import (
	"fmt"
	"sort"
	"sync"
)

// Code identifies a class of diagnostic. Codes double as rule names in the
// configuration's rules map.
type Code string

const (
	// CodeUnsupported is an UnsupportedConstruct: the pass completed, but the
	// emitted behavior for the construct is not claimed correct.
	CodeUnsupported Code = "unsupported-construct"
	// CodeForcePrimaryIO is the UnsupportedConstruct raised when a boundary
	// port is forced.
	CodeForcePrimaryIO Code = "force-primary-io"
	// CodeReadWriteRef is the UnsupportedConstruct raised for a combined
	// read-write reference to a forced signal.
	CodeReadWriteRef Code = "force-readwrite-ref"
	// CodeInternal marks an internal invariant violation.
	CodeInternal Code = "internal-invariant"
)

// Severity levels, matching the rule severities in the configuration.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
	SeverityOff     = "off"
)

// Diagnostic is one reported condition.
type Diagnostic struct {
	Code     Code   `json:"code"`
	Severity string `json:"severity"`
	Signal   string `json:"signal,omitempty"`
	Scope    string `json:"scope,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

func (d Diagnostic) String() string {
	loc := d.File
	if loc == "" {
		loc = "<design>"
	}
	return fmt.Sprintf("%s:%d: %s [%s]: %s", loc, d.Line, d.Severity, d.Code, d.Message)
}

// Sink receives diagnostics. Reporting never aborts the caller.
type Sink interface {
	Report(d Diagnostic)
}

// SeverityFunc maps a code to its configured severity.
type SeverityFunc func(code Code, defaultSeverity string) string

// Collector is a Sink that keeps every diagnostic in report order. It is
// safe for concurrent use so one collector can serve several designs.
type Collector struct {
	mu       sync.Mutex
	items    []Diagnostic
	severity SeverityFunc
}

// NewCollector creates a collector. severity may be nil to keep the
// severity chosen by the reporter.
func NewCollector(severity SeverityFunc) *Collector {
	return &Collector{severity: severity}
}

// Report records d, applying the configured severity. Diagnostics whose
// rule is "off" are dropped.
func (c *Collector) Report(d Diagnostic) {
	if d.Severity == "" {
		d.Severity = SeverityError
	}
	if c.severity != nil {
		d.Severity = c.severity(d.Code, d.Severity)
	}
	if d.Severity == SeverityOff {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// Diagnostics returns a copy of everything reported so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics have the given severity.
func (c *Collector) Count(severity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Severity == severity {
			n++
		}
	}
	return n
}

// Len returns the number of diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sorted returns the diagnostics ordered by file, line and code.
func Sorted(items []Diagnostic) []Diagnostic {
	out := make([]Diagnostic, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}
