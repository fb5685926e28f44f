// Command migrate grows every legacy price account in storage to the
// extended layout. Safe to re-run: accounts already at the extended size
// are left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/observability"
	"price-oracle-lab/internal/oracle"
	"price-oracle-lab/internal/program"
	"price-oracle-lab/internal/storage"
	"price-oracle-lab/internal/storage/migrations"
	pgstore "price-oracle-lab/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	programIDStr := flag.String("program-id", os.Getenv("ORACLE_PROGRAM_ID"), "Oracle program id (base58)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	funderLamports := flag.Uint64("funder-lamports", 1_000_000_000, "Lamports available for rent top-ups")
	dryRun := flag.Bool("dry-run", false, "Report what would be migrated without writing")

	flag.Parse()

	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags|log.Lshortfile)

	if *programIDStr == "" {
		logger.Fatal("--program-id is required")
	}
	programID, err := ledger.ParsePubkey(*programIDStr)
	if err != nil {
		logger.Fatalf("Invalid --program-id: %v", err)
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	store := pgstore.NewPriceAccountStore(pool)
	if err := run(ctx, logger, store, programID, *funderLamports, *dryRun); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, store storage.PriceAccountStore, programID ledger.Pubkey, funderLamports uint64, dryRun bool) error {
	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	prog := program.New(programID)
	rt := ledger.NewRuntime()

	funderKey := ledger.Pubkey{0xfd}
	rt.SetAccount(funderKey, &ledger.Account{Lamports: funderLamports})

	var migrated, skipped, failed int
	for _, rec := range records {
		if len(rec.Data) == oracle.ExtendedPriceAccountSize {
			skipped++
			continue
		}

		if dryRun {
			logger.Printf("Would migrate %s (%s, %d bytes)", rec.Symbol, rec.Pubkey, len(rec.Data))
			migrated++
			continue
		}

		if err := migrateOne(ctx, logger, store, prog, rt, funderKey, rec); err != nil {
			logger.Printf("Failed to migrate %s (%s): %v", rec.Symbol, rec.Pubkey, err)
			failed++
			continue
		}
		migrated++
	}

	if dryRun {
		observability.UpdateAccountSizes(migrated, skipped)
		logger.Printf("Dry run: %d would migrate, %d already extended", migrated, skipped)
		return nil
	}

	observability.UpdateAccountSizes(failed, skipped+migrated)
	logger.Printf("Done: %d migrated, %d already extended, %d failed", migrated, skipped, failed)
	if failed > 0 {
		return errors.New("some accounts failed to migrate")
	}
	return nil
}

func migrateOne(ctx context.Context, logger *log.Logger, store storage.PriceAccountStore, prog *program.Program, rt *ledger.Runtime, funderKey ledger.Pubkey, rec *domain.PriceAccountRecord) error {
	key, err := ledger.ParsePubkey(rec.Pubkey)
	if err != nil {
		return err
	}
	owner, err := ledger.ParsePubkey(rec.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	rt.SetAccount(key, &ledger.Account{
		Owner:    owner,
		Lamports: rec.Lamports,
		Data:     rec.Data,
	})

	if err := prog.Dispatch(rt, []ledger.Pubkey{funderKey, key}, program.EncodeResizeAccount()); err != nil {
		return err
	}

	acc, err := rt.Account(key)
	if err != nil {
		return err
	}
	if err := store.Upsert(ctx, &domain.PriceAccountRecord{
		Pubkey:    rec.Pubkey,
		Owner:     rec.Owner,
		Symbol:    rec.Symbol,
		Lamports:  acc.Lamports,
		Data:      acc.Data,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	logger.Printf("Migrated %s (%s): %d -> %d bytes", rec.Symbol, rec.Pubkey, len(rec.Data), len(acc.Data))
	return nil
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
