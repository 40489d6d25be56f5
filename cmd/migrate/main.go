/**
 * @description
 * Schema migration runner. Each persistent service owns its own migration
 * set under db/migrations/<service>, applied against that service's
 * database.
 *
 * Usage:
 *   migrate -service account -database-url postgres://...
 *   migrate -service payment -database-url postgres://... -down
 *
 * @dependencies
 * - github.com/golang-migrate/migrate/v4: Migration engine with the file
 *   source and postgres database drivers.
 */

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var services = map[string]bool{
	"account": true,
	"tuition": true,
	"payment": true,
}

func main() {
	service := flag.String("service", "", "schema to migrate: account, tuition or payment")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection url")
	down := flag.Bool("down", false, "roll the schema all the way down instead of up")
	flag.Parse()

	if !services[*service] {
		log.Fatalf("level=fatal component=migrate msg=\"unknown service\" service=%q", *service)
	}
	if *databaseURL == "" {
		log.Fatalf("level=fatal component=migrate msg=\"database url must be set\" env=DATABASE_URL")
	}

	sourceURL := fmt.Sprintf("file://db/migrations/%s", *service)
	m, err := migrate.New(sourceURL, *databaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"init failed\" source=%s err=%v", sourceURL, err)
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("level=info component=migrate msg=\"no change\" service=%s", *service)
		return
	}
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"migration failed\" service=%s err=%v", *service, err)
	}
	log.Printf("level=info component=migrate msg=\"migration complete\" service=%s down=%t", *service, *down)
}
