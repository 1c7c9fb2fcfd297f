// Command assetsync maintains the market-data coverage store: it
// synchronizes the provider catalog, registers asset manifests, and
// manages the gap backlog.
//
// Usage:
//
//	assetsync catalog sync --file catalog.toml [--dry-run] [--prune]
//	assetsync asset register --file spec.toml
//	assetsync gaps plan --manifest <id> --from <rfc3339> --to <rfc3339>
//	assetsync gaps lease --worker <id> [--limit n] [--ttl d]
//	assetsync gaps complete --id <id>
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kr/env"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/mag1cfrog/stock-trading-bot/catalog"
	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
	"github.com/mag1cfrog/stock-trading-bot/manifest"
	"github.com/mag1cfrog/stock-trading-bot/timeutil"
)

// config vars
var (
	dbURL = env.String("DATABASE_URL", "assetsync.db")
)

// We collect log output in this buffer,
// and display it only when there's an error.
var logbuf bytes.Buffer

type command struct {
	f func(ctx context.Context, args []string)
}

var commands = map[string]*command{
	"catalog": {catalogCmd},
	"asset":   {assetCmd},
	"gaps":    {gapsCmd},
}

func main() {
	logrus.SetOutput(&logbuf)
	env.Parse()

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(0)
	}
	cmd := commands[os.Args[1]]
	if cmd == nil {
		fmt.Fprintln(os.Stderr, "unknown command:", os.Args[1])
		help(os.Stderr)
		os.Exit(1)
	}

	db, err := sqlite.Open(*dbURL)
	if err != nil {
		fatalln("error:", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := sqlite.Migrate(ctx, db); err != nil {
		fatalln("error:", err)
	}
	ctx = sqlite.NewContext(ctx, db)
	if err := catalog.RefreshAllowed(ctx); err != nil {
		fatalln("error:", err)
	}

	cmd.f(ctx, os.Args[2:])
}

func catalogCmd(ctx context.Context, args []string) {
	if len(args) < 1 || args[0] != "sync" {
		fatalln("error: assetsync catalog sync --file <path> [--dry-run] [--prune]")
	}

	fs := flag.NewFlagSet("catalog sync", flag.ExitOnError)
	file := fs.String("file", "", "catalog TOML file")
	dryRun := fs.Bool("dry-run", false, "print the diff without writing")
	prune := fs.Bool("prune", false, "delete rows absent from the catalog")
	fs.Parse(args[1:])
	if *file == "" {
		fatalln("error: --file is required")
	}

	cat, err := catalog.LoadCatalog(*file)
	if err != nil {
		fatalln("error:", err)
	}

	diff, err := catalog.Sync(ctx, cat, catalog.SyncOptions{DryRun: *dryRun, Prune: *prune})
	if err != nil {
		fatalln("error:", err)
	}

	if *dryRun {
		fmt.Println(diff)
		return
	}
	if diff.Empty() {
		fmt.Println("No changes")
	} else {
		fmt.Println(diff)
	}
	if err := sqlite.KVPut(ctx, "catalog_last_synced_at", timeutil.ToRFC3339Millis(time.Now())); err != nil {
		fatalln("error:", err)
	}
}

func assetCmd(ctx context.Context, args []string) {
	if len(args) < 1 || args[0] != "register" {
		fatalln("error: assetsync asset register --file <path>")
	}

	fs := flag.NewFlagSet("asset register", flag.ExitOnError)
	file := fs.String("file", "", "asset spec TOML file")
	fs.Parse(args[1:])
	if *file == "" {
		fatalln("error: --file is required")
	}

	spec, err := manifest.LoadAssetSpec(*file)
	if err != nil {
		fatalln("error:", err)
	}

	provider := spec.Provider.Code()
	class := spec.AssetClass.Code()
	if !catalog.IsAllowedPair(provider, class) {
		fatalln("error:", fmt.Sprintf("pair %s/%s is not in the catalog", provider, class))
	}

	id, err := manifest.Upsert(ctx, spec)
	if err != nil {
		fatalln("error:", err)
	}
	fmt.Println("manifest id", id)
}

func gapsCmd(ctx context.Context, args []string) {
	if len(args) < 1 {
		fatalln("error: assetsync gaps plan|lease|complete ...")
	}
	switch args[0] {
	case "plan":
		gapsPlan(ctx, args[1:])
	case "lease":
		gapsLease(ctx, args[1:])
	case "complete":
		gapsComplete(ctx, args[1:])
	default:
		fatalln("error: unknown gaps subcommand:", args[0])
	}
}

func gapsPlan(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("gaps plan", flag.ExitOnError)
	manifestID := fs.Int64("manifest", 0, "manifest id")
	from := fs.String("from", "", "window start (RFC3339)")
	to := fs.String("to", "", "window end (RFC3339)")
	fs.Parse(args)
	if *manifestID == 0 || *from == "" || *to == "" {
		fatalln("error: --manifest, --from, and --to are required")
	}

	windowStart, err := timeutil.ParseRFC3339UTC(*from)
	if err != nil {
		fatalln("error:", err)
	}
	windowEnd, err := timeutil.ParseRFC3339UTC(*to)
	if err != nil {
		fatalln("error:", err)
	}

	missing, err := manifest.ComputeMissing(ctx, *manifestID, windowStart, windowEnd)
	if err != nil {
		fatalln("error:", err)
	}
	if err := manifest.GapsUpsert(ctx, *manifestID, missing); err != nil {
		fatalln("error:", err)
	}

	for _, iv := range missing {
		fmt.Printf("%s  %s\n", timeutil.ToRFC3339Millis(iv.Start), timeutil.ToRFC3339Millis(iv.End))
	}
	fmt.Println(len(missing), "gaps queued")
}

func gapsLease(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("gaps lease", flag.ExitOnError)
	worker := fs.String("worker", "", "worker identity")
	limit := fs.Int("limit", 1, "max gaps to lease")
	ttl := fs.Duration("ttl", 30*time.Minute, "lease duration")
	fs.Parse(args)
	if *worker == "" {
		fatalln("error: --worker is required")
	}

	ids, err := manifest.GapsLease(ctx, *worker, *limit, *ttl)
	if err != nil {
		fatalln("error:", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func gapsComplete(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("gaps complete", flag.ExitOnError)
	id := fs.Int64("id", 0, "gap id")
	fs.Parse(args)
	if *id == 0 {
		fatalln("error: --id is required")
	}

	if err := manifest.GapsComplete(ctx, *id); err != nil {
		fatalln("error:", err)
	}
}

func help(w io.Writer) {
	fmt.Fprintln(w, "usage: assetsync <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  catalog sync --file <path> [--dry-run] [--prune]")
	fmt.Fprintln(w, "  asset register --file <path>")
	fmt.Fprintln(w, "  gaps plan --manifest <id> --from <ts> --to <ts>")
	fmt.Fprintln(w, "  gaps lease --worker <id> [--limit n] [--ttl d]")
	fmt.Fprintln(w, "  gaps complete --id <id>")
}

func fatalln(v ...interface{}) {
	io.Copy(os.Stderr, &logbuf)
	fmt.Fprintln(os.Stderr, v...)
	os.Exit(2)
}
