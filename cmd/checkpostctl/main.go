// Command checkpostctl uploads stop files to the stops service and prints
// its summaries and reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"checkpost/pkg/client"
	"checkpost/pkg/middleware"
	"checkpost/pkg/render"

	"github.com/google/uuid"
)

const (
	envBaseURL       = "CHECKPOST_URL"
	envSigningSecret = "CHECKPOST_SIGNING_SECRET"
	defaultBaseURL   = "http://localhost:8080"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error
}

var commands = []command{
	{"ingest", "upload a CSV or JSON file of stops", runIngest},
	{"preview", "clean a file without storing it", runPreview},
	{"summary", "print the dashboard summary", runSummary},
	{"alerts", "print repeat-vehicle and search-arrest alerts", runAlerts},
	{"reports", "list the available reports", runReports},
	{"report", "run one report", runReport},
}

func main() {
	global := flag.NewFlagSet("checkpostctl", flag.ExitOnError)
	baseURL := global.String("url", envOr(envBaseURL, defaultBaseURL), "stops service base URL")
	secret := global.String("secret", os.Getenv(envSigningSecret), "ingest signing secret")
	timeout := global.Duration("timeout", 2*time.Minute, "request timeout")
	global.Usage = func() { usage(global) }
	_ = global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		usage(global)
		os.Exit(2)
	}

	name, args := global.Arg(0), global.Args()[1:]
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage(global)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.NewStopsClient(strings.TrimRight(*baseURL, "/"), *secret)
	if err := cmd.run(ctx, c, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
			_ = render.YAML(os.Stderr, apiErr.Details)
		}
		os.Exit(1)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: checkpostctl [flags] <command> [command flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	fs.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// contentTypeFor picks the upload media type from the file extension.
func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return middleware.ContentTypeJSON
	}
	return middleware.ContentTypeCSV
}

func outputFlag(fs *flag.FlagSet) *string {
	return fs.String("o", render.FormatTable, "output format: table, yaml or json")
}

func openUpload(fs *flag.FlagSet) (*os.File, string, error) {
	if fs.NArg() != 1 {
		return nil, "", errors.New("expected exactly one file argument")
	}
	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func runIngest(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	source := fs.String("source", "", "source label stored with every row (default: file name)")
	key := fs.String("idempotency-key", "", "idempotency key (default: random)")
	output := outputFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := render.ParseFormat(*output)
	if err != nil {
		return err
	}

	f, path, err := openUpload(fs)
	if err != nil {
		return err
	}
	defer f.Close()

	if *source == "" {
		*source = filepath.Base(path)
	}
	if *key == "" {
		*key = uuid.NewString()
	}

	result, err := c.Upload(ctx, f, contentTypeFor(path), *source, *key)
	if err != nil {
		return err
	}
	return render.Value(out, format, result)
}

func runPreview(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "sample rows (default: server setting)")
	columns := fs.String("columns", "", "comma separated columns to show")
	output := outputFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := render.ParseFormat(*output)
	if err != nil {
		return err
	}

	f, path, err := openUpload(fs)
	if err != nil {
		return err
	}
	defer f.Close()

	preview, err := c.Preview(ctx, f, contentTypeFor(path), *limit)
	if err != nil {
		return err
	}
	if format != render.FormatTable {
		return render.Value(out, format, preview)
	}

	fmt.Fprintf(out, "rows: %d  needs_review: %d\n", preview.Rows, preview.NeedsReview)
	if len(preview.DroppedColumns) > 0 {
		fmt.Fprintf(out, "dropped: %s\n", strings.Join(preview.DroppedColumns, ", "))
	}
	cols := render.Columns(splitList(*columns), preview.Columns, preview.Sample)
	return render.Table(out, cols, preview.Sample)
}

func filterFlags(fs *flag.FlagSet) func() url.Values {
	names := []string{"from", "to", "gender", "violation", "vehicle_number", "searched"}
	values := make(map[string]*string, len(names))
	for _, n := range names {
		values[n] = fs.String(n, "", n+" filter")
	}
	return func() url.Values {
		q := url.Values{}
		for _, n := range names {
			if v := *values[n]; v != "" {
				q.Set(n, v)
			}
		}
		return q
	}
}

func runSummary(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	query := filterFlags(fs)
	output := outputFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := render.ParseFormat(*output)
	if err != nil {
		return err
	}

	summary, err := c.Summary(ctx, query())
	if err != nil {
		return err
	}
	return render.Value(out, format, summary)
}

func runAlerts(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("alerts", flag.ContinueOnError)
	query := filterFlags(fs)
	output := outputFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := render.ParseFormat(*output)
	if err != nil {
		return err
	}

	alerts, err := c.Alerts(ctx, query())
	if err != nil {
		return err
	}
	if format != render.FormatTable {
		return render.Value(out, format, alerts)
	}

	rows := make([]map[string]any, len(alerts.RepeatedVehicles))
	for i, v := range alerts.RepeatedVehicles {
		rows[i] = map[string]any{"vehicle_number": v.VehicleNumber, "stops": v.Stops}
	}
	fmt.Fprintf(out, "vehicles stopped at least %d times since %s\n", alerts.MinStops, alerts.Since.Format(time.DateOnly))
	if err := render.Table(out, []string{"vehicle_number", "stops"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nsearch-arrest events: %d\n", len(alerts.SearchArrestEvents))
	return nil
}

func runReports(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reports", flag.ContinueOnError)
	output := outputFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := render.ParseFormat(*output)
	if err != nil {
		return err
	}

	defs, err := c.Reports(ctx)
	if err != nil {
		return err
	}
	if format != render.FormatTable {
		return render.Value(out, format, defs)
	}

	rows := make([]map[string]any, len(defs))
	for i, d := range defs {
		rows[i] = map[string]any{"name": d.Name, "category": d.Category, "title": d.Title}
	}
	return render.Table(out, []string{"name", "category", "title"}, rows)
}

func runReport(ctx context.Context, c *client.StopsClient, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "row limit (default: the report's own)")
	columns := fs.String("columns", "", "comma separated columns to show")
	output := outputFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := render.ParseFormat(*output)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected a report name; see 'checkpostctl reports'")
	}

	result, err := c.Report(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	if format == render.FormatTable {
		fmt.Fprintf(out, "%s\n\n", result.Report.Title)
	}
	cols := render.Columns(splitList(*columns), result.Report.Columns, result.Rows)
	return render.Rows(out, format, cols, result.Rows)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
