/**
 * @description
 * This is the main entry point for the tuition-service. It is responsible for
 * initializing all components of the service: configuration, the database
 * connection pool, the message bus handles, the repository, and the payment
 * consumer. The service is purely event-driven and exposes no HTTP surface.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/tuition/...: Internal packages for the service.
 * - pkg/rabbitmq, pkg/events: Message bus substrate and wire contract.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/app"
	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/config"
	"github.com/IvanTran0101/ibanking-tuition/internal/tuition/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"starting tuition-service\"")

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
	consumer := app.NewPaymentConsumer(repository, publisher, time.Duration(cfg.LockExpiresMin)*time.Minute)

	bindings := []string{
		events.RKPaymentInitiated,
		events.RKPaymentAuthorized,
		events.RKPaymentUnauthorized,
	}
	if err := consumerBus.DeclareQueue(cfg.TuitionPaymentQueue, bindings, true, cfg.ConsumerPrefetch); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"queue declare failed\" queue=%s err=%v", cfg.TuitionPaymentQueue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumerBus.Consume(ctx, cfg.TuitionPaymentQueue, consumer.HandleMessage); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consumer start failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"consumer running\" queue=%s", cfg.TuitionPaymentQueue)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()
	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
