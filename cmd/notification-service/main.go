/**
 * @description
 * This is the main entry point for the notification-service. It is
 * responsible for initializing all components of the service: configuration,
 * the message bus handle, the mailer, the account lookup client, and the
 * terminal-event consumer. The service is purely event-driven and exposes no
 * HTTP surface.
 *
 * @dependencies
 * - internal/notification/...: Internal packages for the service.
 * - pkg/rabbitmq, pkg/events, pkg/mailer, pkg/accountclient: Shared substrate.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/IvanTran0101/ibanking-tuition/internal/notification/app"
	"github.com/IvanTran0101/ibanking-tuition/internal/notification/config"
	"github.com/IvanTran0101/ibanking-tuition/pkg/accountclient"
	"github.com/IvanTran0101/ibanking-tuition/pkg/events"
	"github.com/IvanTran0101/ibanking-tuition/pkg/mailer"
	"github.com/IvanTran0101/ibanking-tuition/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"starting notification-service\"")

	consumerBus, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.EventExchange, cfg.EventDLX)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq dial failed\" err=%v", err)
	}
	defer consumerBus.Close()
	log.Println("level=info component=bootstrap msg=\"rabbitmq connected\"")

	var m mailer.Mailer = mailer.LogMailer{}
	if !cfg.DryRun {
		smtpPort, err := strconv.Atoi(cfg.SMTPPort)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"invalid smtp port\" value=%q err=%v", cfg.SMTPPort, err)
		}
		m = mailer.NewSMTPMailer(cfg.SMTPHost, smtpPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	}

	// Missing account-service config should not prevent the service from
	// booting; recipient fallback lookup will degrade.
	var lookup app.EmailLookup
	if strings.TrimSpace(cfg.AccountServiceURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"account-service url missing; recipient fallback disabled\" env=ACCOUNT_SERVICE_URL")
	} else {
		lookup = app.NewAccountLookup(accountclient.NewClient(cfg.AccountServiceURL))
	}

	consumer := app.NewPaymentConsumer(m, lookup)

	bindings := []string{
		events.RKPaymentCompleted,
		events.RKPaymentCanceled,
	}
	if err := consumerBus.DeclareQueue(cfg.NotificationQueue, bindings, true, cfg.ConsumerPrefetch); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"queue declare failed\" queue=%s err=%v", cfg.NotificationQueue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumerBus.Consume(ctx, cfg.NotificationQueue, consumer.HandleMessage); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consumer start failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"consumer running\" queue=%s", cfg.NotificationQueue)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()
	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
