package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"raw-organizer/internal/cache"
	"raw-organizer/internal/database"
	"raw-organizer/internal/mediatypes"
)

// Default timeout for database operations
const defaultTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	db    string
	root  string
	limit int
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rawtags", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.db, "db", os.Getenv("RAWORG_DB"), "run ledger `file` (default <root>/.cache/runs.db)")
	fs.StringVar(&opts.root, "root", "", "scan `directory` the runs were made for (default any)")
	fs.IntVar(&opts.limit, "n", 20, "number of runs listed by the runs command (0 = all)")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr, fs)
		return 2
	}

	if opts.root != "" {
		abs, err := filepath.Abs(opts.root)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		opts.root = abs
	}
	dbPath := opts.db
	if dbPath == "" {
		base := opts.root
		if base == "" {
			base = "."
		}
		dbPath = filepath.Join(base, cache.DefaultDirName, database.DefaultFileName)
	}

	// Opening creates the file, so check first.
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(stderr, "Error: no run ledger at %s (set -db or RAWORG_DB)\n", dbPath)
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: Failed to open ledger: %v\n", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "runs":
		err = listRuns(ctx, db, opts.limit, stdout)
	case "find":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: rawtags find <tag>")
			return 2
		}
		err = findImages(ctx, db, opts.root, rest[0], stdout)
	case "tags":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: rawtags tags <identity>")
			return 2
		}
		err = showTags(ctx, db, opts.root, rest[0], stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(stderr, fs)
		return 2
	}

	if err != nil {
		if errors.Is(err, database.ErrNoRuns) {
			fmt.Fprintln(stderr, "No applied runs recorded yet.")
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// sanitizeCommand replaces anything but [a-zA-Z0-9_-] with '_' for display.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "RAW Organizer run ledger")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: rawtags [flags] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  runs             - List recorded runs, newest first")
	fmt.Fprintln(w, "  find <tag>       - List images carrying a cluster tag or keyword")
	fmt.Fprintln(w, "  tags <identity>  - List the tags of one image (e.g. 2024/trip/IMG_0001)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}

func listRuns(ctx context.Context, db *database.Database, limit int, w io.Writer) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tIMAGES\tCLUSTERS\tSIDECARS\tMODEL\tROOT")
	for _, r := range runs {
		sidecars := fmt.Sprintf("%d", r.Updated)
		if r.DryRun {
			sidecars = fmt.Sprintf("%d (dry run)", r.Planned)
		}
		if r.Failed > 0 {
			sidecars += fmt.Sprintf(", %d failed", r.Failed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%d/%d\t%s\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Millisecond),
			r.Images,
			r.FineClusters, r.CoarseClusters,
			sidecars,
			r.Model,
			r.Root,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	last, err := db.GetLastRun(ctx)
	if err != nil || last.IsZero() {
		return err
	}
	fmt.Fprintf(w, "\nLast run finished %s\n", last.Local().Format(time.DateTime))
	return nil
}

func findImages(ctx context.Context, db *database.Database, root, tag string, w io.Writer) error {
	ids, err := db.ImagesWithTag(ctx, root, tag)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(w, "No images tagged %s.\n", tag)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func showTags(ctx context.Context, db *database.Database, root, identity string, w io.Writer) error {
	// Accept a RAW file path as well as a bare identity.
	identity = filepath.ToSlash(identity)
	if ext := filepath.Ext(identity); mediatypes.IsRaw(ext) {
		identity = strings.TrimSuffix(identity, ext)
	}

	assignments, err := db.TagsForImage(ctx, root, identity)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		fmt.Fprintf(w, "No tags for %s.\n", identity)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, a := range assignments {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Granularity, a.Tag, a.Keyword)
	}
	return tw.Flush()
}
