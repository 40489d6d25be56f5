/**
 * @description
 * This is the main entry point for the payment-service, the saga aggregator.
 * It is responsible for initializing all components of the service:
 * configuration, the database connection pool, the message bus handles, the
 * intent repository, and the saga consumer. The service is purely
 * event-driven and exposes no HTTP surface.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/payment/...: Internal packages for the service.
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

	"github.com/IvanTran0101/ibanking-tuition/internal/payment/app"
	"github.com/IvanTran0101/ibanking-tuition/internal/payment/config"
	"github.com/IvanTran0101/ibanking-tuition/internal/payment/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"starting payment-service\"")

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
	consumer := app.NewSagaConsumer(repository, publisher)

	bindings := []string{
		events.RKBalanceHeld,
		events.RKBalanceHoldFailed,
		events.RKBalanceUpdated,
		events.RKBalanceReleased,
		events.RKTuitionLocked,
		events.RKTuitionLockFailed,
		events.RKTuitionUpdated,
		events.RKTuitionUnlocked,
		events.RKOTPSucceed,
		events.RKOTPExpired,
		events.RKPaymentUnauthorized,
	}
	if err := consumerBus.DeclareQueue(cfg.PaymentSagaQueue, bindings, true, cfg.ConsumerPrefetch); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"queue declare failed\" queue=%s err=%v", cfg.PaymentSagaQueue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumerBus.Consume(ctx, cfg.PaymentSagaQueue, consumer.HandleMessage); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consumer start failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"consumer running\" queue=%s", cfg.PaymentSagaQueue)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()
	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
