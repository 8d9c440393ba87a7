package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "QUIZCTL : ", log.LstdFlags)
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		logger.Fatal(err)
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		logger.Fatal(err)
	}

	cli := newCommandLine(dbh, os.Stdout)
	err = cli.run(os.Args)
	dbh.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("error: %s", err)
		}
		os.Exit(1)
	}
}
