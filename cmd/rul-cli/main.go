package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nwcai/pm-rul/internal/adapter/fleetfile"
	"github.com/nwcai/pm-rul/internal/chart"
	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/rul"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
		validateDir := validateCmd.String("dir", "", "directory containing machine YAML files")
		validateCmd.Parse(os.Args[2:])
		if *validateDir == "" {
			fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
			validateCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runValidate(*validateDir))

	case "project":
		projectCmd := flag.NewFlagSet("project", flag.ExitOnError)
		opts := projectOptions{}
		projectCmd.StringVar(&opts.file, "file", "", "machine YAML file to project")
		projectCmd.StringVar(&opts.dir, "dir", "", "directory of machine YAML files to project")
		projectCmd.StringVar(&opts.at, "at", "", "projection time (RFC3339, default now)")
		projectCmd.Float64Var(&opts.step, "step", rul.DefaultStep, "sampling step in hours")
		projectCmd.Float64Var(&opts.warning, "warning", policy.DefaultThresholds().Warning, "warning threshold (%)")
		projectCmd.Float64Var(&opts.critical, "critical", policy.DefaultThresholds().Critical, "critical threshold (%)")
		projectCmd.BoolVar(&opts.json, "json", false, "print the full report as JSON")
		projectCmd.BoolVar(&opts.chart, "chart", false, "print the chart structure as JSON (single file only)")
		projectCmd.Parse(os.Args[2:])
		if (opts.file == "") == (opts.dir == "") {
			fmt.Fprintln(os.Stderr, "Error: exactly one of --file or --dir is required")
			projectCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runProject(os.Stdout, opts))

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: rul <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate --dir <path>                 Validate machine YAML files in a directory")
	fmt.Println("  project  --file <path> [--json|--chart] Project one machine's remaining useful life")
	fmt.Println("  project  --dir <path> [--json]        Project every machine in a directory")
	fmt.Println()
}

func runValidate(dirPath string) int {
	validator, err := machine.NewValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	errors := validator.ValidateDirectory(dirPath)

	if len(errors) == 0 {
		fmt.Println(okStyle.Render("✓ All machine files are valid"))
		return 0
	}

	// Group errors by file
	errorsByFile := make(map[string][]machine.ValidationError)
	for _, err := range errors {
		errorsByFile[err.File] = append(errorsByFile[err.File], err)
	}

	var files []string
	for file := range errorsByFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Fprintln(os.Stderr, critStyle.Render(fmt.Sprintf("✗ Validation failed with %d error(s):", len(errors))))
	fmt.Fprintln(os.Stderr)
	for _, file := range files {
		for _, err := range errorsByFile[file] {
			if err.Path != "" {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(err.File), err.Path, err.Message)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(err.File), err.Message)
			}
		}
	}

	return 1
}

type projectOptions struct {
	file     string
	dir      string
	at       string
	step     float64
	warning  float64
	critical float64
	json     bool
	chart    bool
}

func runProject(out io.Writer, opts projectOptions) int {
	now := time.Now()
	if opts.at != "" {
		t, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --at: %v\n", err)
			return 1
		}
		now = t
	}

	thresholds := policy.Thresholds{Warning: opts.warning, Critical: opts.critical}
	if err := thresholds.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	engine := policy.NewEngine(thresholds)

	if opts.dir != "" {
		source, err := fleetfile.NewSource(opts.dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		p := projector.New(source, engine, projector.WithModelOptions(rul.WithStep(opts.step)))
		reports, failures, err := p.ProjectAll(context.Background(), now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if opts.json {
			return writeJSON(out, reports)
		}
		fmt.Fprintln(out, renderFleet(reports))
		for _, f := range failures {
			fmt.Fprintln(os.Stderr, critStyle.Render("✗ "+f.Error()))
		}
		if len(failures) > 0 {
			return 1
		}
		return 0
	}

	validator, err := machine.NewValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	doc, err := machine.LoadFile(opts.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if errs := validator.Validate([]machine.DocumentWithFile{doc}); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return 1
	}

	p := projector.New(nil, engine, projector.WithModelOptions(rul.WithStep(opts.step)))
	report, err := p.Build(doc.Document.Machine(), doc.Document.EventRecords(), now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch {
	case opts.chart:
		return writeJSON(out, chart.Build(chart.Input{
			Projection: report.Projection,
			EventCount: report.EventCount,
			Current:    report.Current,
			Thresholds: report.Thresholds,
		}))
	case opts.json:
		return writeJSON(out, report)
	default:
		fmt.Fprintln(out, renderReport(report))
		return 0
	}
}

func writeJSON(out io.Writer, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
