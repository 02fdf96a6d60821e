// Command hitchload converts a Databank-format CSV into a hashed Senate
// Matching CSV and loads it into the specified Contributor Node, then writes
// the returned personid,token mapping.
//
// The node location and credentials come from the environment
// (HITCH_CONTRIBUTOR_NODE, HITCH_API_KEY, REQUESTS_CA_VERIFY); everything
// else is flags. Input defaults to stdin and the mapping output to stdout so
// the tool composes as a filter.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	guuid "github.com/google/uuid"

	"hitchload/internal/catalog"
	"hitchload/internal/config"
	"hitchload/internal/metrics"
	"hitchload/internal/metrics/datadog"
	"hitchload/internal/metrics/prompush"
	"hitchload/internal/node"
	"hitchload/internal/normalize"
	parsecsv "hitchload/internal/parser/csv"
	"hitchload/internal/pipeline"
	"hitchload/internal/sink"
	"hitchload/internal/tokenstore"
	tspostgres "hitchload/internal/tokenstore/postgres"
	tssqlite "hitchload/internal/tokenstore/sqlite"
)

// Exit codes follow the legacy tool: 1 data/schema, 2 network, 3 environment.
const (
	exitData = 1
	exitNet  = 2
	exitEnv  = 3
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}

// run executes one conversion/upload. It is the whole program behind flag
// parsing; keeping it a plain function means its defers (buffer removal,
// metrics flush) run on every failure path, unlike os.Exit in main.
func run(args []string) (int, error) {
	fs := flag.NewFlagSet("hitchload", flag.ContinueOnError)

	var (
		uuidFlg        string
		inputFlg       string
		outputFlg      string
		noNarrow       bool
		strictEmpty    bool
		chunkBytes     int
		uploadParallel int

		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string

		storeDriver string
		storeDSN    string
		storeTable  string
		storeCreate bool
	)

	fs.StringVar(&uuidFlg, "uuid", "", "UUID of the database to write data into (required)")
	fs.StringVar(&inputFlg, "input", "", "read from filename; UTF-8 CSV (default stdin)")
	fs.StringVar(&outputFlg, "output", "", "write the personid,token mapping to filename (default stdout)")
	fs.BoolVar(&noNarrow, "no-narrow", false, "disable wide→narrow character folding before normalization")
	fs.BoolVar(&strictEmpty, "strict-empty", false, "reject the whole record when a bound field normalizes to empty (legacy behavior)")
	fs.IntVar(&chunkBytes, "chunk-bytes", 0, "upload chunk size in bytes (default 64 MiB)")
	fs.IntVar(&uploadParallel, "upload-parallel", 1, "concurrent chunk uploads")

	fs.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend (pushgateway, datadog, none; default $METRICS_BACKEND or none)")
	fs.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")

	fs.StringVar(&storeDriver, "store-driver", "", "optionally persist the token mapping (postgres, sqlite)")
	fs.StringVar(&storeDSN, "store-dsn", "", "token store connection string")
	fs.StringVar(&storeTable, "store-table", "person_tokens", "token store table name")
	fs.BoolVar(&storeCreate, "store-create", false, "create the token store table when absent")
	verbose := fs.Bool("v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return exitData, err
	}

	if uuidFlg == "" {
		return exitData, fmt.Errorf("-uuid is required")
	}
	if _, err := guuid.Parse(uuidFlg); err != nil {
		return exitData, fmt.Errorf("invalid -uuid %q: %v", uuidFlg, err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return exitEnv, err
	}

	setupMetrics(metricsBackendFlg, pushGatewayURLFlg, datadogAddrFlg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	client, err := node.NewClient(node.Config{
		BaseURL:            cfg.NodeURL,
		APIKey:             cfg.APIKey,
		InsecureSkipVerify: cfg.Verify.Skip,
		CAFile:             cfg.Verify.CAFile,
	})
	if err != nil {
		return exitEnv, err
	}

	ctx := context.Background()
	start := time.Now()

	// Salts must be fully injected before streaming begins.
	cat := catalog.Default()
	stepStart := time.Now()
	err = node.FetchSalts(ctx, client, cat)
	metrics.RecordStep("hitchload", "salt_fetch", err, time.Since(stepStart))
	if err != nil {
		return exitNet, err
	}

	in, closeIn, err := openInput(inputFlg)
	if err != nil {
		return exitData, err
	}
	defer closeIn()

	// Stage the hashed CSV on disk; never hold the dataset in memory. The
	// deferred Remove covers every failure path, so a partial buffer with
	// hashed PII never outlives the run.
	buf, err := sink.NewBuffer("")
	if err != nil {
		return exitData, err
	}
	defer buf.Remove()

	opts := []pipeline.Option{
		pipeline.WithNotices(func(n pipeline.Notice) {
			log.Printf("%s: %s", n.Severity, n.Message)
		}),
	}
	if !noNarrow {
		opts = append(opts, pipeline.WithHook(normalize.NarrowHook))
	}
	if strictEmpty {
		opts = append(opts, pipeline.WithStrictEmpty())
	}

	src := parsecsv.NewReader(in, parsecsv.Options{TrimLeadingSpace: true})
	out := sink.NewCSVWriter(buf.File())

	stepStart = time.Now()
	sum, err := pipeline.New(cat, opts...).Run(ctx, src, out)
	metrics.RecordStep("hitchload", "convert", err, time.Since(stepStart))
	if err != nil {
		return exitData, err
	}
	if err := out.Flush(); err != nil {
		return exitData, err
	}
	if *verbose {
		log.Printf("converted rows=%d dropped_fields=%d unrecognized_headers=%d",
			sum.Rows, sum.DroppedFields, sum.UnrecognizedHeaders)
	}

	hashed, err := buf.Reopen()
	if err != nil {
		return exitData, err
	}

	stepStart = time.Now()
	chunks, err := node.LoadRecords(ctx, client, uuidFlg, hashed, node.UploadOptions{
		ChunkBytes: chunkBytes,
		Parallel:   uploadParallel,
	})
	metrics.RecordStep("hitchload", "upload", err, time.Since(stepStart))
	if err != nil {
		return exitNet, err
	}
	if *verbose {
		log.Printf("uploaded %d chunk(s)", chunks)
	}

	stepStart = time.Now()
	tokens, err := node.PersonTokens(ctx, client, uuidFlg)
	metrics.RecordStep("hitchload", "tokens", err, time.Since(stepStart))
	if err != nil {
		return exitNet, err
	}
	if len(tokens) == 0 {
		return exitNet, fmt.Errorf("no loaded tokens found after load")
	}
	metrics.RecordRow("hitchload", "tokens", int64(len(tokens)))

	if err := writeMapping(outputFlg, tokens); err != nil {
		return exitData, err
	}

	if storeDriver != "" {
		stepStart = time.Now()
		err := storeTokens(ctx, storeDriver, storeDSN, storeTable, storeCreate, tokens)
		metrics.RecordStep("hitchload", "store", err, time.Since(stepStart))
		if err != nil {
			return exitData, err
		}
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	return 0, nil
}

// setupMetrics decides the metrics backend: flag → env → disabled.
func setupMetrics(backendName, gwURL, ddAddr string, verbose bool) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("hitchload", gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		if verbose {
			log.Printf("metrics: backend=pushgateway url=%v", gwURL)
		}
		metrics.SetBackend(b)

	case "datadog":
		if ddAddr == "" {
			ddAddr = os.Getenv("DD_AGENT_ADDR")
		}
		if ddAddr == "" {
			ddAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: ddAddr, Namespace: "hitch."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		if verbose {
			log.Printf("metrics: backend=datadog addr=%v", ddAddr)
		}
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// openInput returns the record source reader: stdin when path is empty.
func openInput(path string) (io.Reader, func(), error) {
	if path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// writeMapping writes the personid,token CSV to path, or stdout when empty.
func writeMapping(path string, tokens []node.Token) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		w = f
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"personid", "token"}); err != nil {
		return fmt.Errorf("write mapping header: %w", err)
	}
	for _, t := range tokens {
		if err := cw.Write([]string{t.PersonID, t.Token}); err != nil {
			return fmt.Errorf("write mapping row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// storeTokens persists the mapping through the selected repository.
func storeTokens(ctx context.Context, driver, dsn, table string, create bool, tokens []node.Token) error {
	rows := make([]tokenstore.Token, len(tokens))
	for i, t := range tokens {
		rows[i] = tokenstore.Token{PersonID: t.PersonID, Token: t.Token}
	}

	var (
		repo    tokenstore.Repository
		closeFn func()
		err     error
	)
	switch driver {
	case "postgres":
		repo, closeFn, err = tspostgres.NewRepository(ctx, tspostgres.Config{DSN: dsn, Table: table})
	case "sqlite":
		repo, closeFn, err = tssqlite.NewRepository(ctx, tssqlite.Config{DSN: dsn, Table: table})
	default:
		return fmt.Errorf("unknown store driver %q (want postgres or sqlite)", driver)
	}
	if err != nil {
		return err
	}
	defer closeFn()

	if create {
		if err := repo.EnsureTable(ctx); err != nil {
			return err
		}
	}
	return repo.SaveTokens(ctx, rows)
}
