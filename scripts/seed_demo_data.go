//go:build ignore
// +build ignore

// Seeds a demo account: one validation list with a handful of contacts
// and one active sending mailbox, so a fresh environment has data to
// click through.
//
// Usage: DATABASE_URL=postgres://... go run scripts/seed_demo_data.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var (
	userID = getEnvOrDefault("DEMO_USER_ID", "00000000-0000-0000-0000-000000000001")
	domain = getEnvOrDefault("DEMO_DOMAIN", "bluelime.pro")
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	listID := uuid.New().String()
	contacts := []string{
		"ana@example.com",
		"bruno@example.com",
		"carla@example.com",
	}

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO validation_lists (id, user_id, name, status, total_emails)
		VALUES ($1, $2, $3, 'unvalidated', $4)`,
		listID, userID, "Demo list", len(contacts))
	if err != nil {
		log.Fatalf("insert list: %v", err)
	}
	for _, email := range contacts {
		_, err = tx.Exec(`
			INSERT INTO contacts (id, list_id, email)
			VALUES ($1, $2, $3)
			ON CONFLICT (list_id, email) DO NOTHING`,
			uuid.New().String(), listID, email)
		if err != nil {
			log.Fatalf("insert contact %s: %v", email, err)
		}
	}

	mailboxID := uuid.New().String()
	address := fmt.Sprintf("demo@%s", domain)
	_, err = tx.Exec(`
		INSERT INTO mailboxes (id, user_id, email, name, smtp_host, smtp_port, smtp_user, smtp_pass, active)
		VALUES ($1, $2, $3, 'Demo Sender', $4, 465, $3, 'demo-password', true)
		ON CONFLICT (email) DO NOTHING`,
		mailboxID, userID, address, "mail."+domain)
	if err != nil {
		log.Fatalf("insert mailbox: %v", err)
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}

	log.Printf("seeded list %s with %d contacts and mailbox %s", listID, len(contacts), address)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
