package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/adapter/storage"
	"github.com/rl1809/duka/internal/config"
	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/core/service"
	"github.com/rl1809/duka/internal/logger"
)

const (
	shopID        = "stress-shop"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()
	log := logger.L()

	// MYSQL_DSN points the run at MySQL; otherwise a throwaway SQLite file is used.
	driver, dsn := config.DriverMySQL, os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dir, err := os.MkdirTemp("", "duka-stress")
		if err != nil {
			log.Fatal("failed to create temp dir", zap.Error(err))
		}
		defer os.RemoveAll(dir)
		driver, dsn = config.DriverSQLite, config.SQLiteDSN(filepath.Join(dir, "stress.db"))
	}

	if err := (&storage.Migrator{Driver: driver, DSN: dsn}).MigrateUp(); err != nil {
		log.Fatal("failed to migrate", zap.Error(err))
	}
	db, err := storage.Open(ctx, driver, dsn)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	repo := storage.NewSQLAdapter(db)
	now := time.Now()
	stock := domain.Stock{
		ID:           uuid.NewString(),
		ShopID:       shopID,
		Name:         "stress-item",
		Count:        initialStock,
		LastEditedBy: "stress",
		Version:      1,
		CreatedAt:    now,
		EditHistory: []domain.EditHistory{{
			EditedBy:  "stress",
			Changes:   fmt.Sprintf("Created stock with count %d", initialStock),
			Timestamp: now,
		}},
	}
	if err := repo.CreateStock(ctx, stock); err != nil {
		log.Fatal("failed to seed stock", zap.Error(err))
	}

	sales := service.NewSaleService(repo, nil, nil, nil, service.Options{Timeout: 30 * time.Second})
	sess := domain.Session{ActorID: "owner-stress", ActorName: "Stress Owner", ShopID: shopID, Role: domain.RoleOwner}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent sells
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(customer int) {
			defer wg.Done()

			_, err := sales.Sell(ctx, sess, service.SellRequest{
				StockID:      stock.ID,
				CustomerName: fmt.Sprintf("customer-%d", customer),
				Quantity:     1,
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", driver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	ok := true
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d sales succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		ok = false
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	final, err := repo.GetStock(ctx, shopID, stock.ID)
	if err != nil {
		log.Fatal("failed to read final stock", zap.Error(err))
	}
	fmt.Printf("Final Stock:      %d\n", final.Count)
	if final.Count == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		ok = false
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Count)
	}

	recorded, err := repo.ListSalesByStock(ctx, shopID, stock.ID)
	if err != nil {
		log.Fatal("failed to list sales", zap.Error(err))
	}
	fmt.Printf("Sale Rows:        %d\n", len(recorded))
	if len(recorded) == int(success) {
		fmt.Println("PASS: One sale row per successful sell")
	} else {
		ok = false
		fmt.Printf("FAIL: Expected %d sale rows, got %d\n", success, len(recorded))
	}

	if !ok {
		os.Exit(1)
	}
}
