package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"docpress/compressor"
	"docpress/config"
	"docpress/contracts"
	"docpress/converter"
	"docpress/files_manager"
	"docpress/tools"
)

type InputFlags = contracts.InputFlags

// paramFlag collects repeated -param key=value flags.
type paramFlag contracts.Params

func (p paramFlag) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("want key=value, got %q", s)
	}
	p[strings.TrimSpace(k)] = v
	return nil
}

func parseFlags(args []string, stderr io.Writer) (InputFlags, error) {
	fs := flag.NewFlagSet("docpress", flag.ContinueOnError)
	fs.SetOutput(stderr)
	params := paramFlag{}
	tool := fs.String("tool", "", "Tool to run, see -list")
	outputDir := fs.String("out", "", "Output directory (default from config)")
	configPath := fs.String("config", "", "Config file (default config.yaml when present)")
	workers := fs.Int("workers", 0, "Parallel jobs (default from config)")
	list := fs.Bool("list", false, "List available tools and exit")
	fs.Var(params, "param", "Tool parameter key=value, repeatable")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: docpress -tool NAME [-param key=value ...] [-out DIR] [inputs ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return InputFlags{}, err
	}

	flags := InputFlags{
		Tool:       *tool,
		Inputs:     fs.Args(),
		OutputDir:  *outputDir,
		ConfigPath: *configPath,
		Params:     contracts.Params(params),
		Workers:    *workers,
		List:       *list,
	}
	if !flags.List && flags.Tool == "" {
		return flags, errors.New("-tool is required")
	}
	if flags.Workers < 0 {
		return flags, errors.New("-workers must not be negative")
	}
	return flags, nil
}

// groupTools consume every file of an input group in one run.
var groupTools = map[string]bool{
	"jpg-to-pdf": true,
	"pdf-merger": true,
}

func extensionsFor(tool string) []string {
	switch {
	case tool == "image-compressor" || tool == "jpg-to-pdf":
		return files_manager.ImageExtensions
	case strings.HasPrefix(tool, "pdf-"):
		return files_manager.PDFExtensions
	case tool == "html-to-pdf":
		return files_manager.HTMLExtensions
	}
	return files_manager.TextExtensions
}

type job struct {
	name   string
	group  string
	prefix string
	paths  []string
}

func stemOf(path string) string {
	return strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// plan splits the inputs into tool runs. Without inputs the tool runs once.
// A per-file job whose file stem was already planned gets its parent
// directory name as output prefix.
func plan(flags InputFlags) ([]job, error) {
	if len(flags.Inputs) == 0 {
		return []job{{name: flags.Tool}}, nil
	}
	groups, err := files_manager.ExpandInputs(flags.Inputs, extensionsFor(flags.Tool))
	if err != nil {
		return nil, err
	}
	var jobs []job
	seen := map[string]bool{}
	for _, g := range groups {
		if groupTools[flags.Tool] {
			jobs = append(jobs, job{name: g.Name, group: g.Name, prefix: g.Name, paths: g.FilePaths})
			continue
		}
		for _, p := range g.FilePaths {
			j := job{name: filepath.Base(p), paths: []string{p}}
			key := stemOf(p)
			if seen[key] {
				j.prefix = filepath.Base(filepath.Dir(p))
				key = strings.ToLower(j.prefix) + "-" + key
			}
			seen[key] = true
			jobs = append(jobs, j)
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no input files for %s", flags.Tool)
	}
	return jobs, nil
}

type runner struct {
	registry  *tools.Registry
	outputDir string
	log       *slog.Logger

	mu      sync.Mutex
	claimed map[string]string
}

// claim reserves path for input. A path already written in this run is an
// error rather than a silent overwrite.
func (r *runner) claim(path, input string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed == nil {
		r.claimed = map[string]string{}
	}
	if owner, ok := r.claimed[path]; ok && owner != input {
		return fmt.Errorf("output %s already written for %s", path, owner)
	}
	r.claimed[path] = input
	return nil
}

func (r *runner) runJob(ctx context.Context, tool string, params contracts.Params, j job) (*contracts.OutputFile, error) {
	files, err := files_manager.ReadGroup(contracts.InputGroup{FilePaths: j.paths})
	if err != nil {
		return nil, err
	}
	out, err := r.registry.Run(ctx, tool, contracts.ToolInput{Files: files, Params: params})
	if err != nil {
		return nil, err
	}
	name := out.FileName
	if j.prefix != "" {
		name = j.prefix + "-" + out.FileName
	}
	path := filepath.Join(r.outputDir, name)
	if err := r.claim(path, strings.Join(j.paths, ",")); err != nil {
		return nil, err
	}
	written, err := files_manager.WriteAtomic(path, out.Data)
	if err != nil {
		return nil, err
	}
	r.log.Info("written", "input", j.name, "output", written.Path, "bytes", written.Size, "method", out.Meta["method"])
	return written, nil
}

func run(ctx context.Context, flags InputFlags, stdout, stderr io.Writer) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.Log, stderr)

	registry := tools.NewRegistry(tools.Dependencies{
		Compressor:  compressor.New(cfg.CompressorOptions(log)),
		Converter:   converter.New(cfg.ConverterOptions(log)),
		JpegQuality: cfg.Converter.JpegQuality,
		Watermark:   cfg.WatermarkOptions(),
		Logger:      log,
	})
	if flags.List {
		for _, name := range registry.Names() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}
	if _, err := registry.Lookup(flags.Tool); err != nil {
		return err
	}

	jobs, err := plan(flags)
	if err != nil {
		return err
	}
	workers := cfg.Workers
	if flags.Workers > 0 {
		workers = flags.Workers
	}
	outputDir := cfg.OutputDir
	if flags.OutputDir != "" {
		outputDir = flags.OutputDir
	}

	r := &runner{registry: registry, outputDir: outputDir, log: log}
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	var failed atomic.Int32
	startTime := time.Now()

	for _, j := range jobs {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if _, err := r.runJob(gctx, flags.Tool, flags.Params, j); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				fmt.Fprintf(stderr, "[ERROR]: %s: %v\n", j.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Info("done", "tool", flags.Tool, "jobs", len(jobs), "failed", failed.Load(), "elapsed", time.Since(startTime))
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d jobs failed", n, len(jobs))
	}
	return nil
}

func main() {
	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, flags, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(1)
	}
}
