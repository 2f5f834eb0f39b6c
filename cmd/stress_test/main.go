package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-checkout/internal/adapter/storage"
	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/service"
	"github.com/rl1809/storefront-checkout/internal/port"
)

const productID = 1

type backend interface {
	port.CatalogRepository
	port.CheckoutRepository
}

func main() {
	var (
		initialStock  = flag.Int("stock", 20, "initial stock of the contended product")
		totalRequests = flag.Int("requests", 50, "number of concurrent checkouts")
		quantity      = flag.Int("quantity", 1, "units per checkout")
		lockTimeout   = flag.Duration("lock-timeout", 0, "row lock wait bound, 0 waits forever")
	)
	flag.Parse()

	ctx := context.Background()

	// Use MySQL when a DSN is given, otherwise the in-memory store
	var (
		repo  backend
		stock func() int
	)
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(*totalRequests + 10)
		if err := storage.MigrateMySQL(db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		mysqlAdapter := storage.NewMySQLAdapter(db, *lockTimeout)
		seed := &domain.Product{ID: productID, Name: "stress item", Price: decimal.RequireFromString("9.99"), Stock: *initialStock, Active: true}
		if err := mysqlAdapter.SaveProduct(ctx, seed); err != nil {
			log.Fatalf("failed to set stock: %v", err)
		}
		repo = mysqlAdapter
		stock = func() int {
			p, err := mysqlAdapter.GetProduct(ctx, productID)
			if err != nil {
				log.Fatalf("failed to read stock: %v", err)
			}
			return p.Stock
		}
	} else {
		mem := storage.NewMemoryStore(*lockTimeout)
		seed := domain.Product{ID: productID, Name: "stress item", Price: decimal.RequireFromString("9.99"), Stock: *initialStock, Active: true}
		if err := mem.PutProduct(ctx, seed); err != nil {
			log.Fatalf("failed to set stock: %v", err)
		}
		repo = mem
		stock = func() int {
			s, _ := mem.Stock(productID)
			return s
		}
	}

	carts := storage.NewMemoryCartStore(domain.ExpiryPolicy{TTL: time.Hour})
	defer carts.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	checkoutService := service.NewCheckoutService(carts, repo, repo, service.WithLogger(quiet))

	// Every buyer fills a cart before any checkout starts
	for i := 0; i < *totalRequests; i++ {
		cart := domain.NewCart()
		if err := cart.Add(productID, *quantity); err != nil {
			log.Fatalf("invalid quantity: %v", err)
		}
		if err := carts.Save(ctx, sessionID(i), cart); err != nil {
			log.Fatalf("failed to save cart: %v", err)
		}
	}

	// Counters
	var successCount, conflictCount, otherCount atomic.Int32

	// Spawn concurrent checkouts
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			sess := domain.Session{ID: sessionID(n), UserID: fmt.Sprintf("user-%d", n)}
			_, err := checkoutService.Checkout(ctx, sess, fmt.Sprintf("req-%d", n))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrCartConflict), errors.Is(err, domain.ErrEmptyCart):
				conflictCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("checkout %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := int(successCount.Load())
	q := *quantity
	wantSuccess := min(*initialStock/q, *totalRequests)
	wantStock := *initialStock - wantSuccess*q
	finalStock := stock()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d x %d units\n", *totalRequests, *quantity)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", conflictCount.Load())
	fmt.Printf("Errored:          %d\n", otherCount.Load())
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	failed := false
	if success != wantSuccess {
		fmt.Printf("FAIL: Expected %d successful checkouts, got %d\n", wantSuccess, success)
		failed = true
	} else {
		fmt.Printf("PASS: Exactly %d checkouts succeeded\n", success)
	}
	if finalStock != wantStock {
		fmt.Printf("FAIL: Expected final stock %d, got %d\n", wantStock, finalStock)
		failed = true
	} else {
		fmt.Printf("PASS: Final stock is %d, never oversold\n", finalStock)
	}
	if failed {
		os.Exit(1)
	}
}

func sessionID(n int) string {
	return fmt.Sprintf("stress-session-%d", n)
}
