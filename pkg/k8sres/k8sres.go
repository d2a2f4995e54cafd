// Package k8sres parses Kubernetes-style CPU and memory/disk strings for
// display. Parsing never fails: malformed input yields NaN so callers can
// render a blank instead of an error.
package k8sres

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Quantity is a parsed memory or disk amount with the unit it was written in.
type Quantity struct {
	Value        float64
	OriginalUnit string
}

// Valid reports whether the quantity parsed.
func (q Quantity) Valid() bool { return !math.IsNaN(q.Value) }

func (q Quantity) String() string {
	if !q.Valid() {
		return ""
	}
	return strconv.FormatFloat(q.Value, 'f', -1, 64) + q.OriginalUnit
}

// Units recognised by ParseMemory, longest first.
var memoryUnits = []string{"Ki", "Mi", "Gi", "Ti", "K", "M", "G", "T"}

var memoryRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?|\.[0-9]+)(Ki|Mi|Gi|Ti|K|M|G|T)?$`)

var cpuRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?|\.[0-9]+)(m?)$`)

// ParseCPU returns the number of cores in s. "600m" and "0.6" both yield 0.6.
// Only a plain decimal or a millicore amount is accepted.
func ParseCPU(s string) float64 {
	m := cpuRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN()
	}
	if m[2] == "m" {
		return v / 1000
	}
	return v
}

// ParseMemory splits s into its magnitude and unit suffix.
func ParseMemory(s string) Quantity {
	s = strings.TrimSpace(s)
	m := memoryRe.FindStringSubmatch(s)
	if m == nil {
		return Quantity{Value: math.NaN()}
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Quantity{Value: math.NaN()}
	}
	return Quantity{Value: v, OriginalUnit: m[2]}
}

// FormatTotal renders value*replicas with two decimals followed by unit.
func FormatTotal(value float64, replicas int, unit string) string {
	total := value * float64(replicas)
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return ""
	}
	if unit == "" {
		return fmt.Sprintf("%.2f", total)
	}
	return fmt.Sprintf("%.2f %s", total, unit)
}

// ToQuantity converts a parsed memory/disk value into an apimachinery
// quantity so it can be compared against minimums. The console's K/M/G/T
// suffixes are decimal (SI), the *i suffixes binary.
func ToQuantity(q Quantity) (resource.Quantity, error) {
	if !q.Valid() {
		return resource.Quantity{}, fmt.Errorf("k8sres: invalid quantity")
	}
	unit := q.OriginalUnit
	if unit == "K" {
		unit = "k"
	}
	return resource.ParseQuantity(strconv.FormatFloat(q.Value, 'f', -1, 64) + unit)
}

// CPUQuantity is ToQuantity for a core count.
func CPUQuantity(cores float64) (resource.Quantity, error) {
	if math.IsNaN(cores) {
		return resource.Quantity{}, fmt.Errorf("k8sres: invalid cpu")
	}
	return *resource.NewMilliQuantity(int64(math.Round(cores*1000)), resource.DecimalSI), nil
}

// IsMemoryUnit reports whether u is a suffix ParseMemory understands.
func IsMemoryUnit(u string) bool {
	return slices.Contains(memoryUnits, u)
}
