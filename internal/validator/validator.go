package validator

// =============================================================================
// CONTRACT GUARD
// =============================================================================
//
// Every JSON boundary of the lowering pipeline has a CUE contract:
//
//   schema.cue         #Design       design documents read from disk
//   facts_schema.cue   #FactTables   tables handed to the policy engine
//   output_schema.cue  #LowerOutput  the --json result
//
// Definitions are closed. A renamed Go field or an unknown statement op
// fails here with the offending path instead of reaching the decoder or the
// policy engine as a silently missing value.
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue output_schema.cue facts_schema.cue
var schemaFS embed.FS

// contract is one compiled schema definition.
type contract struct {
	ctx  *cue.Context
	def  cue.Value
	name string
}

func loadContract(file, definition string) (*contract, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema %s: %w", file, err)
	}

	schema := ctx.CompileBytes(schemaBytes, cue.Filename(file))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", file, schema.Err())
	}

	def := schema.LookupPath(cue.ParsePath(definition))
	if def.Err() != nil {
		return nil, fmt.Errorf("looking up %s definition: %w", definition, def.Err())
	}

	return &contract{ctx: ctx, def: def, name: definition}, nil
}

func (c *contract) validateJSON(jsonBytes []byte) error {
	dataValue := c.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return fmt.Errorf("compiling JSON as CUE: %w", dataValue.Err())
	}

	unified := c.def.Unify(dataValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s validation failed: %w", c.name, err)
	}
	return nil
}

func (c *contract) validate(data any) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling data to JSON: %w", err)
	}
	return c.validateJSON(jsonBytes)
}

func (c *contract) details(data any) []string {
	err := c.validate(data)
	if err == nil {
		return nil
	}
	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	if len(errs) == 0 {
		errs = append(errs, err.Error())
	}
	return errs
}

// Validator checks design documents against #Design before they are
// decoded into a netlist.
type Validator struct {
	c *contract
}

// New creates a new Validator with the embedded design schema
func New() (*Validator, error) {
	c, err := loadContract("schema.cue", "#Design")
	if err != nil {
		return nil, err
	}
	return &Validator{c: c}, nil
}

// Validate checks that a design document conforms to the schema.
// Returns nil if valid, or a detailed error explaining what failed.
func (v *Validator) Validate(data any) error {
	return v.c.validate(data)
}

// ValidateJSON validates JSON bytes directly against the schema
func (v *Validator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes)
}

// ValidationErrors returns one line per schema violation
func (v *Validator) ValidationErrors(data any) []string {
	return v.c.details(data)
}

// OutputValidator validates the driver's JSON result
type OutputValidator struct {
	c *contract
}

// NewOutputValidator creates a validator for --json output
func NewOutputValidator() (*OutputValidator, error) {
	c, err := loadContract("output_schema.cue", "#LowerOutput")
	if err != nil {
		return nil, err
	}
	return &OutputValidator{c: c}, nil
}

// Validate checks that the output data conforms to the output schema
func (v *OutputValidator) Validate(data any) error {
	return v.c.validate(data)
}

// FactsValidator validates relational fact tables against the facts schema.
type FactsValidator struct {
	c *contract
}

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	c, err := loadContract("facts_schema.cue", "#FactTables")
	if err != nil {
		return nil, err
	}
	return &FactsValidator{c: c}, nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data any) error {
	return v.c.validate(data)
}

// ValidationErrors returns one line per schema violation
func (v *FactsValidator) ValidationErrors(data any) []string {
	return v.c.details(data)
}
