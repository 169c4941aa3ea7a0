// Package main is the shortlink maintenance CLI. It runs the same jobs as the
// /api/v1/maintenance endpoints directly against the configured store, for cron.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/penshort/shortlink/internal/app"
	"github.com/penshort/shortlink/internal/auth"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/logger"
	"github.com/penshort/shortlink/internal/webhook"
)

var errUsage = errors.New("usage")

// opener builds the application for commands that need the store.
type opener func(ctx context.Context) (*app.App, error)

type env struct {
	out    io.Writer
	format string
	open   opener
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"gen-key", "generate an admin API key entry for ADMIN_API_KEYS", genKey},
	{"gen-secret", "generate a NOTIFY_WEBHOOK_SECRET value", genSecret},
	{"generate-path", "print an unused random path", generatePath},
	{"expire", "disable shortlinks whose expiration rule has passed", expire},
	{"purge-clicks", "delete click events older than the retention window", purgeClicks},
	{"add-missing-links", "create shortlinks for published content matching auto-generate rules", addMissingLinks},
	{"check-destinations", "report shortlinks with broken destinations", checkDestinations},
	{"check-redirect-chains", "report external destinations that redirect again", checkRedirectChains},
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, openApp)
	stop()

	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "shortlinkctl:", err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return app.New(ctx, cfg, log)
}

func run(ctx context.Context, args []string, out io.Writer, open opener) error {
	fs := flag.NewFlagSet("shortlinkctl", flag.ContinueOnError)
	format := fs.String("format", "plain", "Output format: plain or json")
	fs.Usage = func() { usage(fs.Output(), fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "plain" && *format != "json" {
		return fmt.Errorf("unknown format %q", *format)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, &env{out: out, format: *format, open: open}, fs.Args()[1:])
		}
	}
	fmt.Fprintf(fs.Output(), "unknown command %q\n\n", name)
	fs.Usage()
	return errUsage
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: shortlinkctl [-format plain|json] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	_ = tw.Flush()
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

// withApp opens the application for the duration of fn.
func (e *env) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// emit writes v as JSON, or calls plain to render a table.
func (e *env) emit(v any, plain func(tw *tabwriter.Writer)) error {
	if e.format == "json" {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	plain(tw)
	return tw.Flush()
}

func subcommand(name string) *flag.FlagSet {
	return flag.NewFlagSet("shortlinkctl "+name, flag.ContinueOnError)
}

func genKey(_ context.Context, e *env, args []string) error {
	fs := subcommand("gen-key")
	keyEnv := fs.String("env", auth.EnvLive, "Key environment: live or test")
	name := fs.String("name", "", "Key name shown in logs (defaults to the key prefix)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := auth.GenerateAPIKey(*keyEnv, *name)
	if err != nil {
		return err
	}
	return e.emit(map[string]string{"key": key.Plaintext, "name": key.Name, "entry": key.Entry()}, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "key:\t%s\n", key.Plaintext)
		fmt.Fprintf(tw, "name:\t%s\n", key.Name)
		fmt.Fprintf(tw, "ADMIN_API_KEYS entry:\t%s\n", key.Entry())
	})
}

func genSecret(_ context.Context, e *env, args []string) error {
	if err := subcommand("gen-secret").Parse(args); err != nil {
		return err
	}
	secret, err := webhook.GenerateSecret()
	if err != nil {
		return err
	}
	return e.emit(map[string]string{"secret": secret}, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, secret)
	})
}

func generatePath(ctx context.Context, e *env, args []string) error {
	if err := subcommand("generate-path").Parse(args); err != nil {
		return err
	}
	return e.withApp(ctx, func(a *app.App) error {
		path, err := a.Shortlinks.GeneratePath(ctx)
		if err != nil {
			return err
		}
		return e.emit(map[string]string{"path": path}, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, path)
		})
	})
}

func expire(ctx context.Context, e *env, args []string) error {
	if err := subcommand("expire").Parse(args); err != nil {
		return err
	}
	return e.withApp(ctx, func(a *app.App) error {
		res, err := a.Maintenance.Expire(ctx)
		if err != nil {
			return err
		}
		return e.emit(res, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "CHECKED\tEXPIRED\tFAILED")
			fmt.Fprintf(tw, "%d\t%d\t%d\n", res.Checked, res.Expired, res.Failed)
		})
	})
}

func purgeClicks(ctx context.Context, e *env, args []string) error {
	if err := subcommand("purge-clicks").Parse(args); err != nil {
		return err
	}
	return e.withApp(ctx, func(a *app.App) error {
		res, err := a.Maintenance.PurgeExpiredClicks(ctx)
		if err != nil {
			return err
		}
		return e.emit(res, func(tw *tabwriter.Writer) {
			if res.Cutoff == nil {
				fmt.Fprintln(tw, "click log retention disabled")
				return
			}
			fmt.Fprintf(tw, "deleted %d click events before %s\n", res.Deleted, res.Cutoff.Format("2006-01-02 15:04:05"))
		})
	})
}

func addMissingLinks(ctx context.Context, e *env, args []string) error {
	if err := subcommand("add-missing-links").Parse(args); err != nil {
		return err
	}
	return e.withApp(ctx, func(a *app.App) error {
		res, err := a.Maintenance.AddMissingLinks(ctx)
		if err != nil {
			return err
		}
		return e.emit(res, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "CREATED\tSKIPPED\tFAILED")
			fmt.Fprintf(tw, "%d\t%d\t%d\n", res.Created, res.Skipped, res.Failed)
		})
	})
}

func checkDestinations(ctx context.Context, e *env, args []string) error {
	fs := subcommand("check-destinations")
	mark := fs.Bool("flag", false, "Mark affected shortlinks as broken")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return e.withApp(ctx, func(a *app.App) error {
		issues, err := a.Maintenance.CheckDestinations(ctx, *mark)
		if err != nil {
			return err
		}
		ids := slices.Sorted(maps.Keys(issues))
		rows := make([]any, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, issues[id])
		}
		return e.emit(rows, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "ID\tLABEL\tPATH\tTYPE\tMESSAGE")
			for _, id := range ids {
				is := issues[id]
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", id, is.Label, is.Path, is.Type, is.Message)
			}
		})
	})
}

func checkRedirectChains(ctx context.Context, e *env, args []string) error {
	if err := subcommand("check-redirect-chains").Parse(args); err != nil {
		return err
	}
	return e.withApp(ctx, func(a *app.App) error {
		chains, err := a.Maintenance.CheckRedirectChains(ctx)
		if err != nil {
			return err
		}
		ids := slices.Sorted(maps.Keys(chains))
		rows := make([]any, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, chains[id])
		}
		return e.emit(rows, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "ID\tLABEL\tURL\tSTATUS\tLOCATION")
			for _, id := range ids {
				c := chains[id]
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", id, c.Label, c.URL, c.Status, c.Location)
			}
		})
	})
}
