package ncval

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

// Result is the outcome of validating one region with every callback
// recorded.
type Result struct {
	Name        string       `json:"name,omitempty"`
	Arch        string       `json:"arch"`
	Size        int          `json:"size"`
	Valid       bool         `json:"valid"`
	Options     Options      `json:"options"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Errors returns the diagnostics carrying an error bit.
func (r *Result) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Info.IsError() {
			out = append(out, d)
		}
	}
	return out
}

// Collect validates code for DefaultArch and records every callback.
func Collect(code []byte, options Options, features *cpufeatures.Features) *Result {
	return CollectArch(DefaultArch(), code, options, features)
}

func CollectArch(arch Arch, code []byte, options Options, features *cpufeatures.Features) *Result {
	r := &Result{
		Arch:        arch.Name(),
		Size:        len(code),
		Options:     options,
		Diagnostics: []Diagnostic{},
	}
	r.Valid = ValidateChunkArch(arch, code, options, features, func(begin, end int, info Info) bool {
		r.Diagnostics = append(r.Diagnostics, Diagnostic{Begin: begin, End: end, Info: info})
		return !info.IsError()
	})
	return r
}

// ValidationError is returned by Check for unsafe code. errors.Is matches
// ErrUnsafeCode and the sentinel of every error bit reported.
type ValidationError struct {
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(ncvalerrors.ErrUnsafeCode.Error())
	for i, d := range e.Diagnostics {
		if i == 3 {
			fmt.Fprintf(&sb, " (+%d more)", len(e.Diagnostics)-i)
			break
		}
		fmt.Fprintf(&sb, " [%#x: %s]", d.Begin, strings.Join(d.Info.Messages(), ", "))
	}
	return sb.String()
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{ncvalerrors.ErrUnsafeCode}, infoOf(e.Diagnostics).Errors()...)
}

// Check validates code and returns nil for safe code, a *ValidationError for
// unsafe code, or a precondition error.
func Check(code []byte, options Options, features *cpufeatures.Features) error {
	if len(code)%BundleSize != 0 {
		return fmt.Errorf("%d bytes: %w", len(code), ncvalerrors.ErrLengthNotBundleMultiple)
	}
	if features == nil {
		return ncvalerrors.ErrNilFeatures
	}
	r := Collect(code, options&^CallUserCallbackOnEachInstruction, features)
	if r.Valid {
		return nil
	}
	return &ValidationError{Diagnostics: r.Errors()}
}

// infoOf returns the union of the diagnostics' bits.
func infoOf(ds []Diagnostic) ncvaltypes.Info {
	var all ncvaltypes.Info
	for _, d := range ds {
		all |= d.Info
	}
	return all
}
