// Command inspect prints a stored price account as JSON: the decoded
// header, the aggregate, the publisher table and, for extended accounts,
// the time machine ring.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/oracle"
	pgstore "price-oracle-lab/internal/storage/postgres"
	"price-oracle-lab/internal/timemachine"
)

type accountView struct {
	Pubkey      string           `json:"pubkey"`
	Owner       string           `json:"owner"`
	Symbol      string           `json:"symbol"`
	Lamports    uint64           `json:"lamports"`
	DataLen     int              `json:"data_len"`
	Extended    bool             `json:"extended"`
	Version     uint32           `json:"version"`
	Exponent    int32            `json:"exponent"`
	LastSlot    uint64           `json:"last_slot"`
	ValidSlot   uint64           `json:"valid_slot"`
	Agg         priceView        `json:"aggregate"`
	Publishers  []publisherView  `json:"publishers"`
	TimeMachine *timeMachineView `json:"time_machine,omitempty"`
}

type priceView struct {
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Status      uint32 `json:"status"`
	PublishTime int64  `json:"publish_time"`
}

type publisherView struct {
	Pubkey string    `json:"pubkey"`
	Latest priceView `json:"latest"`
}

type timeMachineView struct {
	Granularity int64        `json:"granularity"`
	Threshold   int64        `json:"threshold"`
	OpenIndex   int32        `json:"open_index"`
	Closed      []bucketView `json:"closed_buckets"`
}

type bucketView struct {
	StartTime int64   `json:"start_time"`
	AvgPrice  float64 `json:"avg_price"`
	AvgConf   float64 `json:"avg_conf"`
	Count     uint32  `json:"count"`
}

func main() {
	loadEnvFile()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	pubkey := flag.String("pubkey", "", "Price account pubkey to inspect (base58)")
	all := flag.Bool("all", false, "Inspect every stored price account")

	flag.Parse()

	logger := log.New(os.Stderr, "[inspect] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *pubkey == "" && !*all {
		logger.Fatal("--pubkey or --all is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewPriceAccountStore(pool)

	var records []*domain.PriceAccountRecord
	if *all {
		records, err = store.List(ctx)
		if err != nil {
			logger.Fatalf("Failed to list accounts: %v", err)
		}
	} else {
		rec, err := store.GetByPubkey(ctx, *pubkey)
		if err != nil {
			logger.Fatalf("Failed to load account %s: %v", *pubkey, err)
		}
		records = []*domain.PriceAccountRecord{rec}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, rec := range records {
		view, err := buildView(rec)
		if err != nil {
			logger.Fatalf("Failed to decode account %s: %v", rec.Pubkey, err)
		}
		if err := enc.Encode(view); err != nil {
			logger.Fatalf("Failed to encode output: %v", err)
		}
	}
}

func buildView(rec *domain.PriceAccountRecord) (*accountView, error) {
	acc, err := oracle.UnmarshalPriceAccount(rec.Data)
	if err != nil {
		return nil, err
	}

	view := &accountView{
		Pubkey:    rec.Pubkey,
		Owner:     rec.Owner,
		Symbol:    rec.Symbol,
		Lamports:  rec.Lamports,
		DataLen:   len(rec.Data),
		Extended:  len(rec.Data) == oracle.ExtendedPriceAccountSize,
		Version:   acc.Header.Version,
		Exponent:  acc.Exponent,
		LastSlot:  acc.LastSlot,
		ValidSlot: acc.ValidSlot,
		Agg: priceView{
			Price:       acc.Agg.Price,
			Conf:        acc.Agg.Conf,
			Status:      acc.Agg.Status,
			PublishTime: acc.Agg.PublishTime,
		},
	}

	for i := uint32(0); i < acc.NumPublishers; i++ {
		c := acc.Components[i]
		view.Publishers = append(view.Publishers, publisherView{
			Pubkey: c.Publisher.String(),
			Latest: priceView{
				Price:       c.Latest.Price,
				Conf:        c.Latest.Conf,
				Status:      c.Latest.Status,
				PublishTime: c.Latest.PublishTime,
			},
		})
	}

	if view.Extended {
		state, err := timemachine.Unmarshal(rec.Data[oracle.TimeMachineOffset:])
		if err != nil {
			return nil, err
		}
		tm := &timeMachineView{
			Granularity: state.Granularity,
			Threshold:   state.Threshold,
			OpenIndex:   state.OpenIndex,
		}
		for _, b := range state.ClosedBuckets() {
			tm.Closed = append(tm.Closed, bucketView{
				StartTime: b.StartTime,
				AvgPrice:  b.AvgPrice(),
				AvgConf:   b.AvgConf(),
				Count:     b.Count,
			})
		}
		view.TimeMachine = tm
	}

	return view, nil
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
