package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"

	"github.com/retssync/retsd/internal/config"
	"github.com/retssync/retsd/internal/database"
)

func main() {
	mysqlCfg := config.LoadMySQL()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	fmt.Printf("Running goose %s...\n", command)

	dsn := database.Config{
		Host:     mysqlCfg.Host,
		Port:     mysqlCfg.Port,
		User:     mysqlCfg.User,
		Password: mysqlCfg.Password,
		Database: mysqlCfg.Database,
	}.DSN()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	fmt.Println("✓ Connected to MySQL")

	if err := goose.SetDialect("mysql"); err != nil {
		log.Fatalf("Failed to set goose dialect: %v", err)
	}

	migrationsDir := "migrations"
	if err := goose.Run(command, db, migrationsDir); err != nil {
		log.Fatalf("Goose %s failed: %v", command, err)
	}

	fmt.Printf("✓ Goose %s completed successfully!\n", command)
}
