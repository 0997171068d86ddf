package report

import (
	"github.com/colorfulnotion/ncval/ncval"
	"github.com/colorfulnotion/ncval/ncval/bundle"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

// Stats summarises a validation result. Instruction counts and the class
// distribution are only complete when the result was collected with
// CallUserCallbackOnEachInstruction.
type Stats struct {
	Bytes               int            `json:"bytes"`
	Bundles             int            `json:"bundles"`
	Instructions        int            `json:"instructions"`
	SpecialInstructions int            `json:"special_instructions"`
	Errors              int            `json:"errors"`
	ErrorKinds          map[string]int `json:"error_kinds"`
	Classes             map[string]int `json:"classes"`
	OperandShapes       map[string]int `json:"operand_shapes"`
}

// Analyze derives statistics from r. code must be the region r was
// collected from; it is re-decoded to classify each reported instruction.
func Analyze(r *ncval.Result, code []byte) *Stats {
	stats := &Stats{
		Bytes:         r.Size,
		Bundles:       r.Size / bundle.Size,
		ErrorKinds:    make(map[string]int),
		Classes:       make(map[string]int),
		OperandShapes: make(map[string]int),
	}
	table := ncval.DefaultArch().Table()
	for _, d := range r.Diagnostics {
		if d.Info.IsError() {
			stats.Errors++
			for _, name := range (d.Info & ncvaltypes.ValidationErrorsMask).Names() {
				stats.ErrorKinds[name]++
			}
		}
		if d.Begin == d.End || d.Info.Has(ncvaltypes.UnrecognizedInstruction) {
			continue
		}
		stats.Instructions++
		for _, name := range (d.Info & ncvaltypes.AnyFieldInfoMask).Names() {
			stats.OperandShapes[name]++
		}
		if d.Info.Has(ncvaltypes.SpecialInstruction) {
			stats.SpecialInstructions++
			stats.Classes["special"]++
			continue
		}
		if d.End > len(code) {
			continue
		}
		inst, err := table.Decode(code, d.Begin, d.End)
		if err != nil {
			continue
		}
		stats.Classes[classKind(inst.Class)]++
	}
	return stats
}

func classKind(c ncvaltypes.Class) string {
	switch c := c.(type) {
	case ncvaltypes.Plain:
		return "plain"
	case ncvaltypes.MemoryReference:
		return "memory"
	case ncvaltypes.FeatureGated:
		return "cpu-gated"
	case ncvaltypes.ControlTransfer:
		return c.Kind.String()
	case ncvaltypes.Forbidden:
		return "forbidden"
	}
	return "unknown"
}
