package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/log"
	"github.com/colorfulnotion/ncval/ncval"
	"github.com/colorfulnotion/ncval/ncval/loader"
	"github.com/colorfulnotion/ncval/ncval/report"
	"github.com/colorfulnotion/ncval/ncvalerrors"
)

type validateFlags struct {
	contiguous  bool
	trace       bool
	format      string
	jobs        int
	inputFormat string
	pad         bool
	disasm      bool
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	vf := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate code regions and report every violation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, features, err := loadFeatures(g)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("contiguous") {
				vf.contiguous = cfg.Options.Contiguous
			}
			if !cmd.Flags().Changed("trace") {
				vf.trace = cfg.Options.Trace
			}
			return runValidate(cmd.Context(), cmd.OutOrStdout(), args, vf, features)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&vf.contiguous, "contiguous", false, "decode the region as one stream instead of bundle by bundle")
	fl.BoolVar(&vf.trace, "trace", false, "report every instruction, not only violations")
	fl.StringVar(&vf.format, "format", "text", "output format: text, json, tree")
	fl.IntVar(&vf.jobs, "jobs", 0, "files validated in parallel (0: GOMAXPROCS)")
	fl.StringVar(&vf.inputFormat, "input-format", "auto", "input format: auto, raw, hex, elf")
	fl.BoolVar(&vf.pad, "pad", false, "pad code with hlt to a bundle multiple")
	fl.BoolVar(&vf.disasm, "disasm", false, "annotate reports with reference disassembly")
	return cmd
}

func (vf *validateFlags) options() ncval.Options {
	var o ncval.Options
	if vf.contiguous {
		o |= ncval.ProcessChunkAsContiguousStream
	}
	if vf.trace {
		o |= ncval.CallUserCallbackOnEachInstruction
	}
	return o
}

// loadRegions reads every file, padding it when asked.
func loadRegions(paths []string, inputFormat string, pad bool) ([]ncval.Region, error) {
	format, err := loader.ParseFormat(inputFormat)
	if err != nil {
		return nil, err
	}
	regions := make([]ncval.Region, 0, len(paths))
	for _, path := range paths {
		c, err := loader.Load(path, format)
		if err != nil {
			return nil, err
		}
		if pad {
			c.PadToBundle()
		}
		if len(c.Bytes)%ncval.BundleSize != 0 {
			return nil, fmt.Errorf("%s: %d bytes, use --pad: %w", path, len(c.Bytes), ncvalerrors.ErrLengthNotBundleMultiple)
		}
		log.Trace(log.CLI, "loaded", "path", path, "format", c.Format, "size", len(c.Bytes), "padded", c.Padded)
		regions = append(regions, ncval.Region{Name: path, Code: c.Bytes})
	}
	return regions, nil
}

func runValidate(ctx context.Context, w io.Writer, paths []string, vf *validateFlags, features *cpufeatures.Features) error {
	if ctx == nil {
		ctx = context.Background()
	}
	regions, err := loadRegions(paths, vf.inputFormat, vf.pad)
	if err != nil {
		return err
	}
	results, err := ncval.ValidateAll(ctx, regions, vf.options(), features, vf.jobs)
	if err != nil {
		return err
	}
	unsafe := 0
	for i, r := range results {
		var code []byte
		if vf.disasm {
			code = regions[i].Code
		}
		switch vf.format {
		case "json":
			err = report.JSON(w, r, code)
		case "tree":
			_, err = fmt.Fprintln(w, report.Tree(r, code))
		case "text":
			err = report.Text(w, r, code)
		default:
			return fmt.Errorf("unknown output format %q", vf.format)
		}
		if err != nil {
			return err
		}
		if !r.Valid {
			unsafe++
		}
	}
	if unsafe > 0 {
		return fmt.Errorf("%d of %d regions: %w", unsafe, len(results), ncvalerrors.ErrUnsafeCode)
	}
	return nil
}
