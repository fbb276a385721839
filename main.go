// Command deb2ebuild turns Debian binary packages into a Gentoo ebuild and its
// metadata.xml.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/etnz/deb2ebuild/console"
	"github.com/etnz/deb2ebuild/convert"
)

// archFlags are the architectures selectable on the command line, in output order.
var archFlags = []string{"amd64", "i386", "i686", "arm64", "armhf"}

// useFlags are shortcuts for commonly requested USE flags.
var useFlags = []string{"system-ffmpeg", "system-mesa"}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := newCLI(stdout, stderr)
	cli.root.SetArgs(args)
	cli.root.SetOut(stdout)
	cli.root.SetErr(stderr)
	if err := cli.root.ExecuteContext(ctx); err != nil {
		cli.logger.DebugContext(ctx, "command failed", "error", err)
		console.NewPrinter(stderr).Error(err)
		return 1
	}
	return 0
}

type cli struct {
	root    *cobra.Command
	printer *console.Printer
	logger  *slog.Logger
	stderr  io.Writer

	verbose   bool
	opts      convert.Options
	archs     map[string]*bool
	shortcuts map[string]*bool
}

func newCLI(stdout, stderr io.Writer) *cli {
	c := &cli{
		printer:   console.NewPrinter(stdout),
		logger:    console.NewLogger(stderr, false),
		stderr:    stderr,
		archs:     make(map[string]*bool),
		shortcuts: make(map[string]*bool),
	}

	root := &cobra.Command{
		Use:   "deb2ebuild",
		Short: "Create a Gentoo ebuild from Debian packages",
		Long: `deb2ebuild downloads Debian binary packages, inspects their control data
and payload, and writes a Gentoo ebuild and metadata.xml installing them.

An @ARCH@ token in the URL is replaced by every selected architecture.`,
		Example: `  deb2ebuild -u https://example.com/foo_1.0_@ARCH@.deb --amd64 --i386
  deb2ebuild --github owner/repo@v1.0 --amd64 --manifest
  deb2ebuild --apt-repo https://deb.example.com --apt-suite stable --apt-package foo --amd64`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			c.logger = console.NewLogger(c.stderr, c.verbose)
			slog.SetDefault(c.logger)
			c.opts.Logger = c.logger
		},
		RunE: c.runConvert,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Log every step")
	pf.StringVar(&c.opts.Database, "database", defaultDatabase(), "Knowledge base file (.json or .yaml)")
	pf.StringVar(&c.opts.CacheDir, "cache-dir", convert.DefaultCacheDir(), "Directory holding downloaded packages")
	pf.StringArrayVar(&c.opts.Use, "use", nil, "Request a USE flag (repeatable)")

	f := root.Flags()
	f.StringArrayVarP(&c.opts.URLs, "url", "u", nil, "Package URL (repeatable)")
	for _, arch := range archFlags {
		c.archs[arch] = f.Bool(arch, false, fmt.Sprintf("Package is available for %s", arch))
	}
	for _, flag := range useFlags {
		c.shortcuts[flag] = f.Bool(flag, false, fmt.Sprintf("Same as --use %s", flag))
	}
	f.StringVar(&c.opts.Template, "template", "", "Ebuild template file (default embedded template)")
	f.StringVarP(&c.opts.OutputDir, "output-dir", "o", ".", "Directory receiving the generated files")
	f.StringVar(&c.opts.Homepage, "homepage", "", "Override the package homepage")
	f.StringVar(&c.opts.License, "license", "", "Override the package license")
	f.StringVar(&c.opts.GitHub, "github", "", "Use the .deb assets of a GitHub release (owner/repo[@tag])")
	f.StringVar(&c.opts.Apt.URL, "apt-repo", "", "APT repository to search for --apt-package")
	f.StringVar(&c.opts.Apt.Suite, "apt-suite", "", "APT suite, empty for flat repositories")
	f.StringVar(&c.opts.Apt.Component, "apt-component", "", "APT component (default main)")
	f.StringVar(&c.opts.AptPackage, "apt-package", "", "Package to look for in --apt-repo")
	f.BoolVar(&c.opts.Manifest, "manifest", false, "Write a Manifest of the distfiles, signed with $GPG_PRIVATE_KEY when set")

	root.AddCommand(c.newInspectCmd())
	c.root = root
	return c
}

// defaultDatabase is database.json next to the executable.
func defaultDatabase() string {
	exe, err := os.Executable()
	if err != nil {
		return "database.json"
	}
	return filepath.Join(filepath.Dir(exe), "database.json")
}

func (c *cli) listener(e fmt.Stringer) {
	c.logger.Debug("event", "event", e.String())
	if w, ok := e.(convert.EventFileWritten); ok {
		if w.Signed {
			c.printer.OK("File %s created and signed.", w.Path)
			return
		}
		c.printer.OK("File %s created.", w.Path)
	}
}

func (c *cli) runConvert(cmd *cobra.Command, _ []string) error {
	opts := c.opts
	for _, arch := range archFlags {
		if *c.archs[arch] {
			opts.Archs = append(opts.Archs, arch)
		}
	}
	for _, flag := range slices.Sorted(maps.Keys(c.shortcuts)) {
		if *c.shortcuts[flag] && !slices.Contains(opts.Use, flag) {
			opts.Use = append(opts.Use, flag)
		}
	}
	if opts.Apt.URL != "" && opts.AptPackage == "" {
		return fmt.Errorf("--apt-repo needs --apt-package")
	}
	if opts.AptPackage != "" && opts.Apt.URL == "" {
		return fmt.Errorf("--apt-package needs --apt-repo")
	}
	opts.GitHubToken = os.Getenv("GITHUB_TOKEN")
	opts.GPGKey = os.Getenv("GPG_PRIVATE_KEY")

	res, err := convert.Run(cmd.Context(), opts, c.listener)
	if err != nil {
		return err
	}
	c.printer.Summary(res.Warnings)
	return nil
}

func (c *cli) newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <url>",
		Short: "Show what a Debian package is made of",
		Long: `inspect downloads a single .deb and prints its control data, its
relations, how they resolve against the knowledge base and what the payload
scanner finds. Nothing is written outside the cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := convert.Inspect(cmd.Context(), c.opts, args[0])
			if err != nil {
				return err
			}
			c.printInspection(in)
			return nil
		},
	}
}

func (c *cli) printInspection(in *convert.Inspection) {
	p := c.printer

	p.Title("Control")
	for _, k := range slices.Sorted(maps.Keys(in.Control.Fields)) {
		if k == "Description" {
			continue
		}
		p.Println("  %s: %s", k, in.Control.Fields[k])
	}
	p.Println("  Description: %s", in.Control.Description)

	p.Title("Relations")
	for _, r := range in.Relations {
		p.Println("  %s", r)
	}

	p.Title("Dependencies")
	for _, line := range in.Dependencies.Lines() {
		p.Println("  %s", line)
	}
	list(p, "USE flags", in.Dependencies.Flags)

	l := in.Layout
	p.Title("Payload")
	list(p, "Desktop files", l.DesktopFiles)
	if l.DocDir != "" {
		p.Println("  Documentation: %s", l.DocDir)
	}
	list(p, "Documentation archives", l.DocArchives)
	list(p, "USE flags", l.Flags)
	for _, m := range l.Moves {
		p.Println("  Move: %s -> %s", m.From, m.To)
	}
	list(p, "Removals", l.Removals)
	list(p, "Executables", l.RunFiles)

	p.Summary(append(slices.Clone(l.Warnings), in.Dependencies.Warnings...))
}

func list(p *console.Printer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	p.Println("  %s:", title)
	for _, item := range items {
		p.Println("    %s", item)
	}
}
