package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/parallax"
	"github.com/gogpu/parallax/config"
	"github.com/gogpu/parallax/ir"
	"github.com/gogpu/parallax/kernelcache"
	"github.com/gogpu/parallax/spirv"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output     string
	ConfigPath string
	Jobs       int
	Debug      bool
	Strict     bool
	Version    string
	CacheDir   string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <ir-file>...",
		Short: "Compile IR modules to SPIR-V kernels",
		Long: `Compile IR modules (.yaml or .msgpack) to SPIR-V compute kernels.

With one input, -o names the output file. With several, -o names the
output directory. Settings come from parallax.toml (found by walking up
from the working directory, or given with --config); flags override it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file or directory")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "configuration file")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "parallel compilations (0 = one per CPU)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "emit debug names")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on types without a direct representation")
	cmd.Flags().StringVar(&opts.Version, "spirv", "", "target SPIR-V version (1.0 to 1.6)")
	cmd.Flags().StringVar(&opts.CacheDir, "cache-dir", "", "kernel cache directory")

	return cmd
}

// loadConfig returns the explicit config, the nearest parallax.toml, or
// the defaults, with changed flags applied on top.
func loadConfig(cmd *cobra.Command, opts *CompileOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		found, ok, err := config.Find(".")
		if err != nil {
			return nil, err
		}
		if ok {
			path = found
		}
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.SPIRV.Debug = opts.Debug
	}
	if flags.Changed("strict") {
		cfg.SPIRV.Strict = opts.Strict
	}
	if flags.Changed("spirv") {
		cfg.SPIRV.Version = opts.Version
	}
	if flags.Changed("jobs") {
		cfg.Build.Jobs = opts.Jobs
	}
	if flags.Changed("cache-dir") {
		cfg.Build.CacheDir = opts.CacheDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// outputPaths maps each input to its .spv path.
func outputPaths(inputs []string, output, outputDir string) []string {
	paths := make([]string, len(inputs))
	dir := outputDir
	if output != "" && len(inputs) == 1 && !strings.HasSuffix(output, string(os.PathSeparator)) {
		paths[0] = output
		return paths
	}
	if output != "" {
		dir = output
	}
	for i, in := range inputs {
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		paths[i] = filepath.Join(dir, base+".spv")
	}
	return paths
}

type compiled struct {
	spirv    []byte
	warnings []*spirv.Error
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, inputs []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	compileOpts, err := cfg.CompileOptions()
	if err != nil {
		return err
	}

	modules := make([]*ir.Module, len(inputs))
	for i, in := range inputs {
		if modules[i], err = ir.ReadFile(in); err != nil {
			return err
		}
	}

	var results []compiled
	if cfg.Build.CacheDir != "" {
		results, err = compileCached(cmd.Context(), modules, compileOpts, cfg)
	} else {
		results, err = compileAll(cmd.Context(), modules, compileOpts, cfg.Build.Jobs)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	for i, path := range outputPaths(inputs, opts.Output, cfg.Build.OutputDir) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, results[i].spirv, 0o644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		for _, w := range results[i].warnings {
			fmt.Fprintf(out, "%s %s: %v\n", warn("warning:"), inputs[i], w)
		}
		fmt.Fprintf(out, "%s compiled %s to %s (%d bytes)\n", ok("✓"), inputs[i], path, len(results[i].spirv))
	}
	return nil
}

func compileAll(ctx context.Context, modules []*ir.Module, opts parallax.CompileOptions, jobs int) ([]compiled, error) {
	kernels, err := parallax.CompileAll(ctx, modules, opts, jobs)
	if err != nil {
		return nil, err
	}
	results := make([]compiled, len(kernels))
	for i, k := range kernels {
		results[i] = compiled{spirv: k.SPIRV, warnings: k.Warnings}
	}
	return results, nil
}

func compileCached(ctx context.Context, modules []*ir.Module, opts parallax.CompileOptions, cfg *config.Config) ([]compiled, error) {
	cache, err := kernelcache.New(kernelcache.Options{
		Dir:   cfg.Build.CacheDir,
		SPIRV: opts.SPIRVOptions(),
	})
	if err != nil {
		return nil, err
	}
	results := make([]compiled, len(modules))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Build.Jobs > 0 {
		g.SetLimit(cfg.Build.Jobs)
	}
	for i, m := range modules {
		g.Go(func() error {
			if opts.Validate {
				if errs, err := parallax.Validate(m); err != nil {
					return err
				} else if len(errs) > 0 {
					return fmt.Errorf("%s: validation failed: %w", m.Name, &errs[0])
				}
			}
			e, err := cache.Get(ctx, m)
			if err != nil {
				return err
			}
			results[i] = compiled{spirv: e.SPIRV, warnings: e.Unsupported}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
