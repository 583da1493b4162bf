// Command ledgerctl runs ledger queries and administrative workflows against
// the SQLite database directly, without going through the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/demand"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/store/sqlite"
)

type envKey struct{}

// env is what Before hands to each command action.
type env struct {
	store  *sqlite.Store
	svc    *inventory.Service
	runner *demand.Runner
	cfg    *config.Config
	log    zerolog.Logger
}

func fromContext(c *cli.Context) *env {
	return c.Context.Value(envKey{}).(*env)
}

func newDBFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db",
		Usage:   "SQLite database path",
		EnvVars: []string{"DB_PATH"},
	}
}

func newAsOfFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "asof",
		Usage: "Exclusive cutoff date (YYYY-MM-DD), defaults to today",
	}
}

func openLedger(c *cli.Context) error {
	cfg := config.Load()
	log := logger.NewWithWriter(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}, os.Stderr)

	path := cfg.Database.Path
	if c.IsSet("db") {
		path = c.String("db")
	}
	store, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	policy, err := inventory.ParseExceptionPolicy(cfg.App.ExceptionPolicy)
	if err != nil {
		store.Close()
		return err
	}

	l := ledger.New(store, ledger.WithLogger(log))
	c.Context = context.WithValue(c.Context, envKey{}, &env{
		store:  store,
		svc:    inventory.NewService(l, inventory.WithLogger(log), inventory.WithExceptionPolicy(policy)),
		runner: demand.NewRunner(l, log, nil),
		cfg:    cfg,
		log:    log,
	})
	return nil
}

func closeLedger(c *cli.Context) error {
	if e, ok := c.Context.Value(envKey{}).(*env); ok && e != nil {
		return e.store.Close()
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "ledgerctl",
		Usage: "Query and administer the stock ledger",
		Flags: []cli.Flag{
			newDBFlag(),
		},
		Before: openLedger,
		After:  closeLedger,
		Commands: []*cli.Command{
			{
				Name:  "stock",
				Usage: "Print on hand, on order and unfulfilled as of a date",
				Flags: []cli.Flag{
					newAsOfFlag(),
					&cli.StringFlag{Name: "sku", Usage: "Single SKU (all SKUs when empty)"},
				},
				Action: runStock,
			},
			{
				Name:  "position",
				Usage: "Print the receipt-date aware inventory position",
				Flags: []cli.Flag{
					newAsOfFlag(),
					&cli.StringFlag{Name: "sku", Required: true},
				},
				Action: runPosition,
			},
			{
				Name:  "events",
				Usage: "Print the events of a SKU in replay order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sku", Required: true},
				},
				Action: runEvents,
			},
			{
				Name:  "sales",
				Usage: "Record the units sold on a day",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Required: true},
					&cli.StringFlag{Name: "sku", Required: true},
					&cli.IntFlag{Name: "qty", Required: true},
				},
				Action: runSales,
			},
			{
				Name:  "revert",
				Usage: "Remove every exception event of one (date, sku, kind)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Required: true},
					&cli.StringFlag{Name: "sku", Required: true},
					&cli.StringFlag{Name: "kind", Required: true, Usage: "WASTE, ADJUST or UNFULFILLED"},
				},
				Action: runRevert,
			},
			{
				Name:  "classify",
				Usage: "Run the demand classification over every SKU",
				Flags: []cli.Flag{
					newAsOfFlag(),
					&cli.IntFlag{Name: "window-days", Usage: "Sales window length (configured default when 0)"},
				},
				Action: runClassify,
			},
			{
				Name:  "migrate",
				Usage: "Seed the ledger from a legacy on-hand export (CSV or JSON)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "Export file, format picked by extension"},
					&cli.StringFlag{Name: "ref-date", Usage: "Snapshot date (inferred from the records when empty)"},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// ACTIONS
// =============================================================================

func runStock(c *cli.Context) error {
	e := fromContext(c)
	asOf, err := asOfFlag(c)
	if err != nil {
		return err
	}
	l := e.svc.Ledger()
	if sku := c.String("sku"); sku != "" {
		stock, err := l.CalculateAsOf(c.Context, sku, asOf)
		if err != nil {
			return err
		}
		return printJSON(stock)
	}
	all, err := l.CalculateAllAsOf(c.Context, asOf)
	if err != nil {
		return err
	}
	return printJSON(all)
}

func runPosition(c *cli.Context) error {
	e := fromContext(c)
	asOf, err := asOfFlag(c)
	if err != nil {
		return err
	}
	pos, err := e.svc.Ledger().InventoryPosition(c.Context, c.String("sku"), asOf)
	if err != nil {
		return err
	}
	return printJSON(pos)
}

func runEvents(c *cli.Context) error {
	events, err := fromContext(c).svc.Ledger().Events(c.Context, c.String("sku"))
	if err != nil {
		return err
	}
	return printJSON(events)
}

func runSales(c *cli.Context) error {
	date, err := ledger.ParseDate(c.String("date"))
	if err != nil {
		return err
	}
	res, err := fromContext(c).svc.RecordDailySales(c.Context, date, c.String("sku"), c.Int("qty"))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runRevert(c *cli.Context) error {
	date, err := ledger.ParseDate(c.String("date"))
	if err != nil {
		return err
	}
	kind, err := ledger.ParseKind(strings.ToUpper(c.String("kind")))
	if err != nil {
		return err
	}
	res, err := fromContext(c).svc.RevertExceptionDay(c.Context, date, c.String("sku"), kind)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runClassify(c *cli.Context) error {
	e := fromContext(c)
	settings := demand.SettingsFrom(e.cfg.Classifier)
	if c.IsSet("asof") {
		d, err := ledger.ParseDate(c.String("asof"))
		if err != nil {
			return err
		}
		settings.AsOf = d
	}
	if n := c.Int("window-days"); n > 0 {
		settings.WindowDays = n
	}
	res, err := e.runner.ClassifyAllSKUs(c.Context, settings)
	if err != nil {
		return err
	}
	e.log.Info().
		Float64("q1", res.Report.Q1).
		Float64("q3", res.Report.Q3).
		Bool("thresholds_fallback", res.Report.ThresholdsFallback).
		Msg("classification complete")

	type row struct {
		demand.AuditRow
		Previous ledger.DemandCategory `json:"previous"`
		Applied  bool                  `json:"applied"`
	}
	rows := make([]row, len(res.Results))
	for i, r := range res.Results {
		rows[i] = row{AuditRow: r.Metrics.Audit(4), Previous: r.Previous, Applied: r.Applied}
	}
	return printJSON(rows)
}

func runMigrate(c *cli.Context) error {
	e := fromContext(c)
	var refDate ledger.Date
	if raw := c.String("ref-date"); raw != "" {
		d, err := ledger.ParseDate(raw)
		if err != nil {
			return err
		}
		refDate = d
	}
	records, err := readLegacyFile(c.String("file"))
	if err != nil {
		return err
	}
	res, err := e.svc.MigrateLegacy(c.Context, records, refDate)
	if err != nil {
		return err
	}
	if res.Skipped {
		e.log.Info().Str("reason", res.Reason).Msg("migration skipped")
	} else if !res.Verified() {
		e.log.Warn().Int("mismatches", len(res.Mismatches)).Msg("migration did not verify")
	}
	return printJSON(res)
}

// =============================================================================
// HELPERS
// =============================================================================

func asOfFlag(c *cli.Context) (ledger.Date, error) {
	raw := c.String("asof")
	if raw == "" {
		return ledger.DateOf(time.Now()), nil
	}
	return ledger.ParseDate(raw)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
