package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval"
	"github.com/colorfulnotion/ncval/ncval/disasm"
	"github.com/colorfulnotion/ncval/ncval/loader"
	"github.com/colorfulnotion/ncval/ncval/report"
)

func newDisasmCmd(g *globalFlags) *cobra.Command {
	var (
		inputFormat string
		dumpHex     bool
	)
	cmd := &cobra.Command{
		Use:   "disasm FILE",
		Short: "Print the reference disassembly of a code region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := loader.ParseFormat(inputFormat)
			if err != nil {
				return err
			}
			c, err := loader.Load(args[0], format)
			if err != nil {
				return err
			}
			text := disasm.Disassemble(c.Bytes)
			if dumpHex {
				text = loader.EncodeHex(c.Bytes)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVar(&inputFormat, "input-format", "auto", "input format: auto, raw, hex, elf")
	cmd.Flags().BoolVar(&dumpHex, "hex", false, "print the loaded bytes as hex text instead of disassembly")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	var (
		inputFormat string
		pad         bool
	)
	cmd := &cobra.Command{
		Use:   "stats FILE...",
		Short: "Print instruction statistics of code regions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, features, err := loadFeatures(g)
			if err != nil {
				return err
			}
			regions, err := loadRegions(args, inputFormat, pad)
			if err != nil {
				return err
			}
			all := make(map[string]*report.Stats, len(regions))
			for _, region := range regions {
				r := ncval.Collect(region.Code, ncval.CallUserCallbackOnEachInstruction, features)
				all[region.Name] = report.Analyze(r, region.Code)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		},
	}
	cmd.Flags().StringVar(&inputFormat, "input-format", "auto", "input format: auto, raw, hex, elf")
	cmd.Flags().BoolVar(&pad, "pad", false, "pad code with hlt to a bundle multiple")
	return cmd
}

func newFeaturesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Show the host and policy CPU feature vectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, f, err := loadFeatures(g)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FEATURE\tPOLICY\tHOST")
			for _, feat := range cpufeatures.AllFeatures() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", feat, yesNo(f.Policy.Has(feat)), yesNo(f.Host.Has(feat)))
			}
			return tw.Flush()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func newDiffCmd() *cobra.Command {
	var color bool
	cmd := &cobra.Command{
		Use:   "diff EXPECTED.json ACTUAL.json",
		Short: "Compare two JSON validation reports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			actual, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			out, changed, err := report.Diff(expected, actual, color)
			if err != nil {
				return err
			}
			if !changed {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return errChanged
		},
	}
	cmd.Flags().BoolVar(&color, "color", false, "colour the diff")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "render REPORT.json",
		Short: "Render a saved JSON report as text or a bundle tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := report.ReadDocument(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			r, err := doc.Result()
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			switch format {
			case "text":
				return report.Text(w, r, nil)
			case "tree":
				_, err = fmt.Fprintln(w, report.Tree(r, nil))
				return err
			}
			return fmt.Errorf("unknown output format %q", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, tree")
	return cmd
}
