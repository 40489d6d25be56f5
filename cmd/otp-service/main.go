/**
 * @description
 * This is the main entry point for the otp-service. It is responsible for
 * initializing all components of the service: configuration, the Redis
 * client, the message bus handles, the mailer, the challenge consumer, the
 * verifier, and the HTTP verify endpoint. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client for TTL-bound challenge records.
 * - internal/otp/...: Internal packages for the service.
 * - pkg/rabbitmq, pkg/events, pkg/mailer: Shared substrate.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IvanTran0101/ibanking-tuition/internal/otp/api"
	"github.com/IvanTran0101/ibanking-tuition/internal/otp/app"
	"github.com/IvanTran0101/ibanking-tuition/internal/otp/config"
	"github.com/IvanTran0101/ibanking-tuition/internal/otp/store"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/mailer"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting otp-service\" port=%s", cfg.ServerPort)

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", err)
	}
	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis ping failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")

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

	var m mailer.Mailer = mailer.LogMailer{}
	if !cfg.DryRun {
		smtpPort, err := strconv.Atoi(cfg.SMTPPort)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"invalid smtp port\" value=%q err=%v", cfg.SMTPPort, err)
		}
		m = mailer.NewSMTPMailer(cfg.SMTPHost, smtpPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	}

	otpStore := store.NewRedisStore(redisClient)
	publisher := events.NewPublisher(publisherBus)
	ttl := time.Duration(cfg.OTPTTLSec) * time.Second

	consumer := app.NewPaymentConsumer(otpStore, publisher, m, cfg.OTPLength, ttl)
	verifier := app.NewVerifier(otpStore, publisher, cfg.OTPMaxAttempts, cfg.OTPAttemptPolicy, ttl)

	bindings := []string{events.RKPaymentProcessing}
	if err := consumerBus.DeclareQueue(cfg.OTPPaymentQueue, bindings, true, cfg.ConsumerPrefetch); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"queue declare failed\" queue=%s err=%v", cfg.OTPPaymentQueue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumerBus.Consume(ctx, cfg.OTPPaymentQueue, consumer.HandleMessage); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consumer start failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"consumer running\" queue=%s", cfg.OTPPaymentQueue)

	handlers := api.NewHandlers(verifier)
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
