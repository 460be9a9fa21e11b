package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"rewards_webapp/internal/db"
	"rewards_webapp/internal/store/pgstore"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	apply := flag.Bool("apply", false, "apply migration")
	flag.Parse()

	if !*apply {
		// dry run: печатаем схему
		fmt.Print(pgstore.Schema)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 3, time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := pgstore.New(pool, 0).Migrate(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	fmt.Println("applied documents schema")
}
