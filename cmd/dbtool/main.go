package main

import (
	"context"
	"log"

	"github.com/RyuseiKamei/MeowChain/internal/config"
	"github.com/RyuseiKamei/MeowChain/internal/db"
)

var mainRunner = realMain

func main() {
	mainRunner()
}

func realMain() {
	cfg := config.Load()

	pool, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()

	log.Println("initializing schema...")
	if err := db.InitSchema(ctx, pool); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}

	log.Println("seeding shop items...")
	if err := db.SeedShopItems(ctx, pool); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}

	log.Println("done")
}
