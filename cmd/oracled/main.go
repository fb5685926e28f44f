package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/exporter"
	"price-oracle-lab/internal/feed"
	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/observability"
	"price-oracle-lab/internal/oracle"
	"price-oracle-lab/internal/program"
	"price-oracle-lab/internal/storage"
	chstore "price-oracle-lab/internal/storage/clickhouse"
	"price-oracle-lab/internal/storage/memory"
	"price-oracle-lab/internal/storage/migrations"
	pgstore "price-oracle-lab/internal/storage/postgres"
	"price-oracle-lab/internal/timemachine"
)

// Daemon wires the feed, the program runtime and the stores together.
type Daemon struct {
	logger *log.Logger

	prog    *program.Program
	rt      *ledger.Runtime
	feedSrv *feed.Server
	exp     *exporter.Exporter

	accountStore storage.PriceAccountStore

	mu        sync.Mutex
	bySymbol  map[string]ledger.Pubkey
	exponents map[ledger.Pubkey]int32
	started   time.Time
	updates   uint64
	rejected  uint64
}

func main() {
	loadEnvFile()

	listenAddr := flag.String("listen-addr", ":8080", "HTTP listen address for feed, health and metrics")
	programIDStr := flag.String("program-id", os.Getenv("ORACLE_PROGRAM_ID"), "Oracle program id (base58)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	symbols := flag.String("symbols", "", "Comma-separated symbol:exponent pairs to bootstrap (e.g. SOL/USD:-8)")
	publishers := flag.String("publishers", os.Getenv("ORACLE_PUBLISHERS"), "Comma-separated publisher pubkeys (base58) to register on every account")
	flushInterval := flag.Duration("flush-interval", 10*time.Second, "Aggregate export flush interval")

	flag.Parse()

	logger := log.New(os.Stdout, "[oracled] ", log.LstdFlags|log.Lshortfile)

	if *programIDStr == "" {
		logger.Fatal("--program-id is required")
	}
	programID, err := ledger.ParsePubkey(*programIDStr)
	if err != nil {
		logger.Fatalf("Invalid --program-id: %v", err)
	}

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accountStore, aggregateStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	d := &Daemon{
		logger:       logger,
		rt:           ledger.NewRuntime(),
		feedSrv:      feed.NewServer(nil),
		accountStore: accountStore,
		bySymbol:     make(map[string]ledger.Pubkey),
		exponents:    make(map[ledger.Pubkey]int32),
		started:      time.Now(),
	}
	d.prog = program.New(programID)
	d.exp = exporter.New(aggregateStore, &exporter.Config{FlushInterval: *flushInterval, MaxBatch: 500})
	d.prog.OnFinalized = func(key ledger.Pubkey, buckets []timemachine.Bucket) {
		d.mu.Lock()
		exponent := d.exponents[key]
		d.mu.Unlock()
		d.exp.Collect(key, exponent, buckets)
	}

	if err := d.hydrate(ctx); err != nil {
		logger.Fatalf("Failed to load accounts: %v", err)
	}
	if err := d.bootstrap(ctx, *symbols); err != nil {
		logger.Fatalf("Failed to bootstrap symbols: %v", err)
	}
	if len(d.bySymbol) == 0 {
		logger.Fatal("No price accounts available. Use --symbols to bootstrap")
	}
	if err := d.registerPublishers(ctx, *publishers); err != nil {
		logger.Fatalf("Failed to register publishers: %v", err)
	}

	d.exp.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", d.feedSrv)
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", d.handleStatus)

	httpSrv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		logger.Printf("Listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, shutting down...", sig)
	case <-done:
	}

	cancel()
	d.feedSrv.Close()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	if err := d.exp.Close(shutdownCtx); err != nil {
		logger.Printf("Final export flush failed: %v", err)
	}

	logger.Println("Shutdown complete")
}

// hydrate loads every persisted price account into the runtime.
func (d *Daemon) hydrate(ctx context.Context) error {
	records, err := d.accountStore.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	legacy, extended := 0, 0
	for _, rec := range records {
		key, err := ledger.ParsePubkey(rec.Pubkey)
		if err != nil {
			return fmt.Errorf("account %s: %w", rec.Pubkey, err)
		}
		owner, err := ledger.ParsePubkey(rec.Owner)
		if err != nil {
			return fmt.Errorf("account %s owner: %w", rec.Pubkey, err)
		}

		acc, err := oracle.UnmarshalPriceAccount(rec.Data)
		if err != nil {
			return fmt.Errorf("account %s: %w", rec.Pubkey, err)
		}

		d.rt.SetAccount(key, &ledger.Account{
			Owner:    owner,
			Lamports: rec.Lamports,
			Data:     rec.Data,
		})
		d.bySymbol[rec.Symbol] = key
		d.exponents[key] = acc.Exponent

		if len(rec.Data) == oracle.ExtendedPriceAccountSize {
			extended++
		} else {
			legacy++
		}
	}
	observability.UpdateAccountSizes(legacy, extended)

	d.logger.Printf("Loaded %d price accounts (%d legacy, %d extended)", len(records), legacy, extended)
	return nil
}

// bootstrap creates extended price accounts for symbols that do not exist
// yet. Account addresses are derived from the program id and the symbol.
func (d *Daemon) bootstrap(ctx context.Context, symbols string) error {
	if symbols == "" {
		return nil
	}

	for _, pair := range strings.Split(symbols, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		symbol := pair
		exponent := int32(-8)
		if idx := strings.LastIndex(pair, ":"); idx > 0 {
			symbol = pair[:idx]
			var exp int
			if _, err := fmt.Sscanf(pair[idx+1:], "%d", &exp); err != nil {
				return fmt.Errorf("symbol pair %q: %w", pair, err)
			}
			exponent = int32(exp)
		}

		if _, ok := d.bySymbol[symbol]; ok {
			continue
		}

		key, err := ledger.DeriveAddress(d.prog.ID, []byte("price"), []byte(symbol))
		if err != nil {
			return fmt.Errorf("derive address for %s: %w", symbol, err)
		}

		acc := oracle.NewPriceAccount(exponent)
		data := make([]byte, oracle.ExtendedPriceAccountSize)
		if err := acc.Marshal(data); err != nil {
			return err
		}
		if err := timemachine.InstallDefault(data[oracle.TimeMachineOffset:]); err != nil {
			return err
		}

		account := &ledger.Account{
			Owner:    d.prog.ID,
			Lamports: ledger.MinimumBalance(oracle.ExtendedPriceAccountSize),
			Data:     data,
		}
		d.rt.SetAccount(key, account)
		d.bySymbol[symbol] = key
		d.exponents[key] = exponent

		if err := d.persist(ctx, symbol, key); err != nil {
			return err
		}
		d.logger.Printf("Bootstrapped %s at %s (exponent %d)", symbol, key, exponent)
	}
	return nil
}

// registerPublishers ensures every configured publisher has a component
// slot on every account. Already-registered publishers are skipped.
func (d *Daemon) registerPublishers(ctx context.Context, publishers string) error {
	if publishers == "" {
		return nil
	}

	var pubs []ledger.Pubkey
	for _, s := range strings.Split(publishers, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		pub, err := ledger.ParsePubkey(s)
		if err != nil {
			return fmt.Errorf("publisher %q: %w", s, err)
		}
		pubs = append(pubs, pub)
	}

	for symbol, key := range d.bySymbol {
		raw, err := d.rt.Account(key)
		if err != nil {
			return err
		}
		acc, err := oracle.UnmarshalPriceAccount(raw.Data)
		if err != nil {
			return fmt.Errorf("account %s: %w", key, err)
		}

		added := 0
		for _, pub := range pubs {
			if acc.ComponentIndex(pub) >= 0 {
				continue
			}
			if err := d.prog.Dispatch(d.rt, []ledger.Pubkey{key}, program.EncodeAddPublisher(pub)); err != nil {
				return fmt.Errorf("add publisher %s to %s: %w", pub, symbol, err)
			}
			// Keep the local mirror in sync for the duplicate check.
			if err := acc.AddPublisher(pub); err != nil {
				return fmt.Errorf("add publisher %s to %s: %w", pub, symbol, err)
			}
			added++
		}
		if added > 0 {
			if err := d.persist(ctx, symbol, key); err != nil {
				return err
			}
			d.logger.Printf("Registered %d publishers on %s", added, symbol)
		}
	}
	return nil
}

// run consumes publisher updates until the feed closes.
func (d *Daemon) run(ctx context.Context) {
	for upd := range d.feedSrv.Updates() {
		if err := d.apply(ctx, upd); err != nil {
			d.mu.Lock()
			d.rejected++
			d.mu.Unlock()
			d.logger.Printf("Update for %s rejected: %v", upd.Symbol, err)
			continue
		}
		d.mu.Lock()
		d.updates++
		d.mu.Unlock()
	}
}

// apply dispatches one publisher update and persists the mutated account.
func (d *Daemon) apply(ctx context.Context, upd feed.Update) error {
	d.mu.Lock()
	key, ok := d.bySymbol[upd.Symbol]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown symbol %q", upd.Symbol)
	}

	data := program.EncodeUpdatePrice(program.PriceUpdate{
		Publisher:   upd.Publisher,
		Price:       upd.Price,
		Conf:        upd.Conf,
		Status:      upd.Status,
		PublishTime: upd.PublishTime,
	})
	if err := d.prog.Dispatch(d.rt, []ledger.Pubkey{key}, data); err != nil {
		return err
	}

	return d.persist(ctx, upd.Symbol, key)
}

// persist writes the runtime's copy of an account back to the store.
func (d *Daemon) persist(ctx context.Context, symbol string, key ledger.Pubkey) error {
	acc, err := d.rt.Account(key)
	if err != nil {
		return err
	}
	return d.accountStore.Upsert(ctx, &domain.PriceAccountRecord{
		Pubkey:    key.String(),
		Owner:     acc.Owner.String(),
		Symbol:    symbol,
		Lamports:  acc.Lamports,
		Data:      acc.Data,
		UpdatedAt: time.Now().UTC(),
	})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	status := map[string]interface{}{
		"uptime_seconds":   int64(time.Since(d.started).Seconds()),
		"accounts":         len(d.bySymbol),
		"updates_applied":  d.updates,
		"updates_rejected": d.rejected,
	}
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// createStores builds the account and aggregate stores, running migrations
// for the database-backed ones.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.PriceAccountStore, storage.BucketAggregateStore, func(), error) {
	if useMemory {
		return memory.NewPriceAccountStore(), memory.NewBucketAggregateStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		pool.Close()
		conn.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		pool.Close()
		conn.Close()
	}
	return pgstore.NewPriceAccountStore(pool), chstore.NewBucketAggregateStore(conn), cleanup, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
