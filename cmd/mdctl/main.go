// Command mdctl runs Markdown operations against the content directory and
// the configured cache: batch generation, cache maintenance, status and
// single conversions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/markdown-negotiation/internal/app"
	"github.com/Sternrassler/markdown-negotiation/internal/config"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/logging"
	"github.com/Sternrassler/markdown-negotiation/pkg/pagination"
	"github.com/Sternrassler/markdown-negotiation/pkg/service"
)

const usage = `Usage: mdctl [--config path] <command> [args]

Commands:
  generate [ids...] [--all] [--post-type=post] [--output=cache|file|stdout]
           [--dir=./markdown-export] [--concurrency=4]
  cache flush | status | purge
  status
  convert <id>
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{stdout: os.Stdout, stderr: os.Stderr, load: config.Load}
	os.Exit(c.run(ctx, os.Args[1:]))
}

// cli carries the process streams and the config loader.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	load   func(path string) (*config.Config, error)
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("mdctl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() { fmt.Fprint(c.stderr, usage) }
	configPath := fs.String("config", "", "path to YAML config")
	verbose := fs.Bool("v", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := c.load(*configPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "mdctl: %v\n", err)
		return 1
	}

	level := logging.LogLevel(cfg.Log.Level)
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.Setup(logging.Config{
		Level:   level,
		Pretty:  true,
		Output:  c.stderr,
		Service: "mdctl",
	})

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "mdctl: %v\n", err)
		return 1
	}
	defer a.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "generate":
		err = c.generate(ctx, a, rest)
	case "cache":
		err = c.cache(ctx, a, rest)
	case "status":
		err = c.status(ctx, a)
	case "convert":
		err = c.convert(ctx, a, rest)
	default:
		fmt.Fprintf(c.stderr, "mdctl: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(c.stderr, "mdctl %s: %v\n", cmd, err)
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func (c *cli) generate(ctx context.Context, a *app.App, args []string) error {
	defaults := service.DefaultGenerateOptions()

	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	all := fs.Bool("all", false, "generate every published item of --post-type")
	postType := fs.String("post-type", "post", "content type for --all")
	output := fs.String("output", string(defaults.Output), "cache, file or stdout")
	dir := fs.String("dir", defaults.Dir, "output directory for --output=file")
	concurrency := fs.Int("concurrency", defaults.Concurrency, "number of workers")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		return usageError(err.Error())
	}

	opts := defaults
	opts.Output = service.Output(*output)
	opts.Dir = *dir
	opts.Concurrency = *concurrency
	opts.Writer = c.stdout
	switch opts.Output {
	case service.OutputCache, service.OutputFile, service.OutputStdout:
	default:
		return usageError(fmt.Sprintf("unknown output %q", *output))
	}

	var items []content.Item
	var failed []service.ItemError
	switch {
	case *all:
		fetcher := pagination.NewBatchFetcher(pagination.RepositoryFetcher{
			Repository: a.Repository,
			Type:       *postType,
			Status:     content.StatusPublish,
		}, pagination.DefaultConfig(), logging.NewLogger("pagination"))
		fetched, err := fetcher.FetchAll(ctx)
		if err != nil {
			return fmt.Errorf("list %s content: %w", *postType, err)
		}
		items = fetched
	case fs.NArg() > 0:
		for _, raw := range fs.Args() {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return usageError(fmt.Sprintf("invalid id %q", raw))
			}
			item, err := a.Repository.Get(ctx, id)
			if err != nil {
				failed = append(failed, service.ItemError{ID: id, Err: err})
				continue
			}
			items = append(items, item)
		}
	default:
		return usageError("pass content ids or --all")
	}

	report, err := a.Service.Generate(ctx, items, opts)
	if err != nil {
		return err
	}
	report.Failed = append(failed, report.Failed...)

	for _, f := range report.Failed {
		fmt.Fprintf(c.stderr, "warning: content %d: %v\n", f.ID, f.Err)
	}
	fmt.Fprintf(c.stderr, "generated %d, skipped %d, failed %d in %s\n",
		report.Generated, report.Skipped, len(report.Failed), report.Duration.Round(time.Millisecond))
	return nil
}

// reorderFlags moves flags ahead of positional ids so "generate 1 2 --output=file"
// parses like "generate --output=file 1 2".
func reorderFlags(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if !strings.Contains(name, "=") && name != "all" && i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return append(flags, positional...)
}

func (c *cli) cache(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return usageError("expected flush, status or purge")
	}

	switch args[0] {
	case "flush":
		if err := a.Service.FlushAll(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		fmt.Fprintf(c.stdout, "flushed %s cache\n", a.Cache.Driver())
	case "status":
		st := a.Service.Stats(ctx)
		tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Enabled\t%s\n", yesNo(st.CacheEnabled))
		fmt.Fprintf(tw, "Driver\t%s\n", st.CacheDriver)
		fmt.Fprintf(tw, "Available\t%s\n", yesNo(st.CacheAvailable))
		fmt.Fprintf(tw, "TTL\t%ds\n", st.CacheTTL)
		return tw.Flush()
	case "purge":
		n, err := a.PurgeExpired(ctx)
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		fmt.Fprintf(c.stdout, "purged %d expired entries\n", n)
	default:
		return usageError(fmt.Sprintf("unknown cache command %q", args[0]))
	}
	return nil
}

func (c *cli) status(ctx context.Context, a *app.App) error {
	st := a.Service.Stats(ctx)

	tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version\t%s\n", app.Version)
	fmt.Fprintf(tw, "Enabled\t%s\n", yesNo(st.Enabled))
	fmt.Fprintf(tw, "Converter\t%s (%s)\n", st.Converter, availability(st.ConverterAvailable))
	fmt.Fprintf(tw, "Cache driver\t%s\n", st.CacheDriver)
	fmt.Fprintf(tw, "Cache available\t%s\n", yesNo(st.CacheAvailable))
	fmt.Fprintf(tw, "Post types\t%s\n", strings.Join(st.PostTypes, ", "))
	return tw.Flush()
}

func (c *cli) convert(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return usageError("expected one content id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return usageError(fmt.Sprintf("invalid id %q", args[0]))
	}

	md, err := a.Service.ConvertByID(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprint(c.stdout, md)
	fmt.Fprintf(c.stderr, "characters: %d\n", len([]rune(md)))
	fmt.Fprintf(c.stderr, "tokens: %d\n", a.Service.EstimateTokens(md))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func availability(b bool) string {
	if b {
		return "available"
	}
	return "unavailable"
}
