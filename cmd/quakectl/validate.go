package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ValidateCommand re-classifies an input FeatureCollection and checks a
// previously written Result against it.
type ValidateCommand struct {
	Input  string `short:"i" long:"input" description:"GeoJSON FeatureCollection the result was produced from" required:"true"`
	Result string `short:"r" long:"result" description:"Classification result to check (.json, .yaml or .yml)" required:"true"`
}

var errValidationFailed = errors.New("validation failed")

func (c *ValidateCommand) Execute(_ []string) error {
	data, err := readInput(c.Input)
	if err != nil {
		return err
	}
	features, err := domain.ParseFeatureCollection(data)
	if err != nil {
		return err
	}

	resultData, err := readInput(c.Result)
	if err != nil {
		return err
	}
	var result domain.Result
	if err := decode(c.Result, resultData, &result); err != nil {
		return err
	}

	phases := []*phase{
		validateInvariants(result),
		validateReclassification(features, result),
	}
	if !report(os.Stdout, len(features), phases) {
		return errValidationFailed
	}
	return nil
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// report prints a summary and any failures. It returns whether every phase passed.
func report(w io.Writer, features int, phases []*phase) bool {
	fmt.Fprintln(w, "=== Marker Classification Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-36s %s\n", p.name, status)
	}
	fmt.Fprintf(w, "\nInput features: %d\n", features)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}

// ── Phase 1: Result invariants ──
// Checks properties that must hold for any Result, regardless of input.

func validateInvariants(r domain.Result) *phase {
	p := &phase{name: "Phase 1: Result invariants"}

	if r.Dropped < 0 {
		p.errorf("dropped is negative: %d", r.Dropped)
	}
	if len(r.Points) == 0 && r.Bounds != nil {
		p.errorf("bounds present but there are no points")
	}
	if len(r.Points) > 0 && r.Bounds == nil {
		p.errorf("%d points but bounds are missing", len(r.Points))
	}
	if b := r.Bounds; b != nil && (b.MinLat > b.MaxLat || b.MinLng > b.MaxLng) {
		p.errorf("bounds not ordered: %+v", *b)
	}

	for i, pt := range r.Points {
		checkPoint(p, i, pt, r.Bounds)
	}
	return p
}

func checkPoint(p *phase, i int, pt domain.ClassifiedPoint, bounds *domain.BoundingBox) {
	if pt.RadiusPx < 3 || pt.RadiusPx > 18 {
		p.errorf("point %d: radius %g outside [3, 18]", i, pt.RadiusPx)
	}
	if pt.Color != pt.ColorToken.Color() {
		p.errorf("point %d: color %q does not match tier %q", i, pt.Color, pt.ColorToken)
	}

	mag := math.NaN()
	if pt.Magnitude != nil {
		mag = *pt.Magnitude
	}
	if want := domain.TierFor(mag); pt.ColorToken != want {
		p.errorf("point %d: tier %q, magnitude implies %q", i, pt.ColorToken, want)
	}
	if want := domain.RadiusPx(mag); !floatEq(pt.RadiusPx, want) {
		p.errorf("point %d: radius %g, magnitude implies %g", i, pt.RadiusPx, want)
	}
	if bounds != nil && !bounds.Contains(pt.Lat, pt.Lng) {
		p.errorf("point %d: (%g, %g) outside bounds", i, pt.Lat, pt.Lng)
	}
}

// ── Phase 2: Re-classification ──
// Re-runs Classify on the input and compares with the stored result.

func validateReclassification(features []domain.Feature, r domain.Result) *phase {
	p := &phase{name: "Phase 2: Re-classification"}
	want := domain.Classify(features)

	if len(want.Points)+want.Dropped != len(features) {
		p.errorf("classifier lost features: %d points + %d dropped != %d", len(want.Points), want.Dropped, len(features))
	}
	if r.Dropped != want.Dropped {
		p.errorf("dropped: expected %d, got %d", want.Dropped, r.Dropped)
	}
	if len(r.Points) != len(want.Points) {
		p.errorf("point count: expected %d, got %d", len(want.Points), len(r.Points))
		return p
	}

	// Passthrough properties may change numeric types through YAML, so only the
	// computed fields are compared.
	opts := cmp.Options{
		cmpopts.IgnoreFields(domain.ClassifiedPoint{}, "SourceProperties"),
		cmpopts.EquateApprox(0, 1e-9),
	}
	for i := range want.Points {
		if diff := cmp.Diff(want.Points[i], r.Points[i], opts); diff != "" {
			p.errorf("point %d mismatch (-expected +got):\n%s", i, diff)
		}
	}
	if diff := cmp.Diff(want.Bounds, r.Bounds, opts); diff != "" {
		p.errorf("bounds mismatch (-expected +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Magnitudes, r.Magnitudes, opts); diff != "" {
		p.errorf("magnitude stats mismatch (-expected +got):\n%s", diff)
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
