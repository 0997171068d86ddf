// Package report renders validation results as ncval text, JSON or a tree
// grouped by bundle, and compares JSON reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xlab/treeprint"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/colorfulnotion/ncval/ncval"
	"github.com/colorfulnotion/ncval/ncval/bundle"
	"github.com/colorfulnotion/ncval/ncval/disasm"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

// Diagnostic is the JSON form of one callback.
type Diagnostic struct {
	Begin    int      `json:"begin"`
	End      int      `json:"end"`
	Bits     []string `json:"bits"`
	Messages []string `json:"messages,omitempty"`
	Codes    []string `json:"codes,omitempty"`
	Details  []string `json:"details,omitempty"`
	Disasm   string   `json:"disasm,omitempty"`
}

// Document is the JSON form of a result.
type Document struct {
	Name        string       `json:"name,omitempty"`
	Arch        string       `json:"arch"`
	Size        int          `json:"size"`
	Valid       bool         `json:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Stats       *Stats       `json:"stats,omitempty"`
}

// NewDocument converts r. With code non-nil each diagnostic carries its
// reference disassembly and the document carries Stats.
func NewDocument(r *ncval.Result, code []byte) *Document {
	doc := &Document{
		Name:        r.Name,
		Arch:        r.Arch,
		Size:        r.Size,
		Valid:       r.Valid,
		Diagnostics: make([]Diagnostic, 0, len(r.Diagnostics)),
	}
	for _, d := range r.Diagnostics {
		jd := Diagnostic{Begin: d.Begin, End: d.End, Bits: d.Info.Names(), Messages: d.Info.Messages()}
		for _, err := range d.Info.Errors() {
			jd.Codes = append(jd.Codes, ncvalerrors.GetErrorCodeWithName(err))
			jd.Details = append(jd.Details, ncvalerrors.GetErrorDesc(err))
		}
		if jd.Bits == nil {
			jd.Bits = []string{}
		}
		if code != nil && d.End <= len(code) {
			jd.Disasm = disasm.Range(code, d.Begin, d.End)
		}
		doc.Diagnostics = append(doc.Diagnostics, jd)
	}
	if code != nil {
		doc.Stats = Analyze(r, code)
	}
	return doc
}

// ReadDocument parses a report written by JSON.
func ReadDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ncvalerrors.ErrUnsupportedFormat, err)
	}
	return &doc, nil
}

// Result rebuilds the validation result doc was rendered from. Options and
// the bytes behind each diagnostic are not part of a document.
func (doc *Document) Result() (*ncval.Result, error) {
	r := &ncval.Result{
		Name:        doc.Name,
		Arch:        doc.Arch,
		Size:        doc.Size,
		Valid:       doc.Valid,
		Diagnostics: make([]ncval.Diagnostic, 0, len(doc.Diagnostics)),
	}
	for _, jd := range doc.Diagnostics {
		var info ncval.Info
		for _, name := range jd.Bits {
			bit, ok := ncvaltypes.ParseInfoName(name)
			if !ok {
				return nil, fmt.Errorf("%w: diagnostic at %#x has unknown bit %q", ncvalerrors.ErrUnsupportedFormat, jd.Begin, name)
			}
			info |= bit
		}
		r.Diagnostics = append(r.Diagnostics, ncval.Diagnostic{Begin: jd.Begin, End: jd.End, Info: info})
	}
	return r, nil
}

// JSON writes r as an indented JSON document.
func JSON(w io.Writer, r *ncval.Result, code []byte) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(r, code))
}

// Text writes one "VALIDATOR: <offset>: <message>" line per error bit,
// followed by a verdict line. With code non-nil the offending bytes are
// disassembled.
func Text(w io.Writer, r *ncval.Result, code []byte) error {
	for _, d := range r.Diagnostics {
		if !d.Info.IsError() {
			if code != nil {
				if _, err := fmt.Fprintf(w, "%x: %s\n", d.Begin, disasm.Range(code, d.Begin, d.End)); err != nil {
					return err
				}
			}
			continue
		}
		for _, msg := range d.Info.Messages() {
			line := fmt.Sprintf("VALIDATOR: %x: %s", d.Begin, msg)
			if code != nil && d.End > d.Begin && d.End <= len(code) {
				line += " (" + disasm.Range(code, d.Begin, d.End) + ")"
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, Verdict(r))
	return err
}

// Verdict returns the closing line of a text report.
func Verdict(r *ncval.Result) string {
	name := r.Name
	if name == "" {
		name = "<code>"
	}
	if r.Valid {
		return fmt.Sprintf("*** %s is safe ***", name)
	}
	return fmt.Sprintf("*** %s IS UNSAFE ***", name)
}

// Tree renders the diagnostics grouped by the bundle they start in.
func Tree(r *ncval.Result, code []byte) string {
	tree := treeprint.New()
	state := "valid"
	if !r.Valid {
		state = "UNSAFE"
	}
	name := r.Name
	if name == "" {
		name = "<code>"
	}
	tree.SetValue(fmt.Sprintf("%s (%s, %d bytes, %s)", name, r.Arch, r.Size, state))

	var (
		branch treeprint.Tree
		cur    = -1
	)
	for _, d := range r.Diagnostics {
		if idx := bundle.Index(d.Begin); idx != cur || branch == nil {
			cur = idx
			start := idx * bundle.Size
			branch = tree.AddBranch(fmt.Sprintf("bundle %d [%#x, %#x)", idx, start, start+bundle.Size))
		}
		label := fmt.Sprintf("%#x-%#x %s", d.Begin, d.End, d.Info)
		if code != nil && d.End > d.Begin && d.End <= len(code) {
			label += ": " + disasm.Range(code, d.Begin, d.End)
		}
		branch.AddNode(label)
	}
	return tree.String()
}

// Diff compares two JSON reports. It returns an ASCII diff of expected
// against actual and whether they differ.
func Diff(expected, actual []byte, coloring bool) (string, bool, error) {
	differ := gojsondiff.New()
	delta, err := differ.Compare(expected, actual)
	if err != nil {
		return "", false, fmt.Errorf("comparing reports: %w", err)
	}
	if !delta.Modified() {
		return "", false, nil
	}
	var left map[string]interface{}
	if err := json.Unmarshal(expected, &left); err != nil {
		return "", true, err
	}
	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	})
	out, err := f.Format(delta)
	if err != nil {
		return "", true, err
	}
	return strings.TrimRight(out, "\n"), true, nil
}
