package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
	"github.com/ariefcatur/go-storefront.git/internal/config"
	"github.com/ariefcatur/go-storefront.git/internal/httpx"
	"github.com/ariefcatur/go-storefront.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront.git/internal/kafka"
	"github.com/ariefcatur/go-storefront.git/internal/orders"
	"github.com/ariefcatur/go-storefront.git/internal/postgres"
	"github.com/ariefcatur/go-storefront.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one topic each
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)
	pDeleted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderDeleted, 1024)
	pDeleted.Start(ctx)

	// Repos & services
	products := &catalog.Repo{DB: db}
	ledger := &inventory.Ledger{DB: db}
	orderRepo := &orders.Repo{DB: db}
	svc := &orders.Service{Products: products, Orders: orderRepo, Stock: ledger}

	router := httpx.NewRouter()
	(&httpx.ProductsHandler{Repo: products, Redis: rdb}).Register(router)
	(&httpx.StockHandler{Ledger: ledger}).Register(router)
	(&httpx.OrdersHandler{
		Service:           svc,
		Repo:              orderRepo,
		Redis:             rdb,
		ProducerPlaced:    pPlaced,
		ProducerCancelled: pCancelled,
		ProducerDeleted:   pDeleted,
		ServiceName:       cfg.ServiceName,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	for _, p := range []*kafkax.Producer{pPlaced, pCancelled, pDeleted} {
		p.Close()
	}
	cancel()
	for _, p := range []*kafkax.Producer{pPlaced, pCancelled, pDeleted} {
		p.WaitClosed()
	}
}
