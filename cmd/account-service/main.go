/**
 * @description
 * This is the main entry point for the account-service. It is responsible for
 * initializing all components of the service: configuration, the database
 * connection pool, the message bus handles, the repository, the payment
 * consumer, and the internal HTTP lookup endpoint. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/account/...: Internal packages for the service.
 * - pkg/rabbitmq, pkg/events: Message bus substrate and wire contract.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IvanTran0101/ibanking-tuition/internal/account/api"
	"github.com/IvanTran0101/ibanking-tuition/internal/account/app"
	"github.com/IvanTran0101/ibanking-tuition/internal/account/config"
	"github.com/IvanTran0101/ibanking-tuition/internal/account/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting account-service\" port=%s", cfg.ServerPort)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Separate bus handles keep consumer prefetch off the publishing channel.
	consumerBus, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.EventExchange, cfg.EventDLX)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer dial failed\" err=%v", err)
	}
	defer consumerBus.Close()

	publisherBus, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.EventExchange, cfg.EventDLX)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq publisher dial failed\" err=%v", err)
	}
	defer publisherBus.Close()
	log.Println("level=info component=bootstrap msg=\"rabbitmq connected\"")

	repository := store.NewPostgresRepository(dbpool)
	publisher := events.NewPublisher(publisherBus)
	consumer := app.NewPaymentConsumer(repository, publisher, time.Duration(cfg.HoldExpiresMin)*time.Minute)

	bindings := []string{
		events.RKPaymentInitiated,
		events.RKPaymentAuthorized,
		events.RKPaymentUnauthorized,
	}
	if err := consumerBus.DeclareQueue(cfg.AccountPaymentQueue, bindings, true, cfg.ConsumerPrefetch); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"queue declare failed\" queue=%s err=%v", cfg.AccountPaymentQueue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumerBus.Consume(ctx, cfg.AccountPaymentQueue, consumer.HandleMessage); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consumer start failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"consumer running\" queue=%s", cfg.AccountPaymentQueue)

	handlers := api.NewHandlers(repository)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.Routes(handlers),
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
