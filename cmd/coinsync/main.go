package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/abarbosa/fintalk/logger"
	"github.com/abarbosa/fintalk/quote"
	"github.com/abarbosa/fintalk/store"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const (
	dbDriver = "postgres"

	// quotes younger than this are not refreshed
	maxQuoteAge = 10 * time.Minute
)

var schema = `
CREATE TABLE IF NOT EXISTS coin_quote (
	id SERIAL PRIMARY KEY,
	pair TEXT NOT NULL,
	bid NUMERIC NOT NULL,
	ask NUMERIC NOT NULL,
	pct_change NUMERIC NOT NULL,
	fetched_at TIMESTAMP NOT NULL
);`

// Refreshes the coins collection the app reads currency quotes from,
// and archives every fetched quote to Postgres for history. Meant to
// run on a schedule.
func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	lg := logger.New(ctx, "coinsync")

	st, err := store.NewFirestore(ctx)
	if err != nil {
		lg.Fatalf("connecting to firestore: %v", err)
	}
	defer st.Close()

	var db *sqlx.DB
	if dsn := os.Getenv("COINSYNC_DSN"); dsn != "" {
		db, err = sqlx.Connect(dbDriver, dsn)
		if err != nil {
			lg.Fatalf("connecting to postgres: %v", err)
		}
		defer db.Close()
		db.MustExec(schema)
	} else {
		lg.Printf("COINSYNC_DSN not set, skipping history archive")
	}

	now := time.Now()
	refreshed := 0
	for _, pair := range quote.DefaultCurrencies {
		if fresh(ctx, st, pair, now) {
			lg.Printf("%s still fresh, skipping", pair)
			continue
		}

		currency, err := quote.FetchCurrency(ctx, pair)
		if err != nil {
			lg.Printf("fetching %s: %v", pair, err)
			continue
		}

		if err := quote.SaveCoin(ctx, st, *currency); err != nil {
			lg.Printf("saving %s: %v", pair, err)
			continue
		}
		refreshed++

		if db != nil {
			if err := archive(db, *currency, now); err != nil {
				lg.Printf("archiving %s: %v", pair, err)
			}
		}
	}
	lg.Printf("done, refreshed %d of %d pairs", refreshed, len(quote.DefaultCurrencies))
}

// fresh reports whether the newest cached quote for the pair is recent
// enough to keep.
func fresh(ctx context.Context, st *store.Firestore, pair string, now time.Time) bool {
	docs, err := st.GetAll(ctx, store.Query{
		Path:    quote.CoinCollection,
		Filters: []store.Filter{{Path: "code_codein", Op: store.OpEqual, Value: pair}},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   1,
	})
	if err != nil || len(docs) == 0 {
		return false
	}
	return !quote.Stale(docs[0], maxQuoteAge, now)
}

func archive(db *sqlx.DB, c quote.Currency, fetchedAt time.Time) error {
	bid, err := strconv.ParseFloat(c.Bid, 64)
	if err != nil {
		return err
	}
	ask, err := strconv.ParseFloat(c.Ask, 64)
	if err != nil {
		return err
	}
	pctChange, err := strconv.ParseFloat(c.PctChange, 64)
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO coin_quote (pair, bid, ask, pct_change, fetched_at) VALUES ($1, $2, $3, $4, $5)`,
		c.Pair(), bid, ask, pctChange, fetchedAt,
	)
	return err
}
