// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

// herdctl is a small command-line front end for the sync engine: it opens the
// local herd database, talks to the remote API with a token from the
// environment, and exposes the common operations for scripting and debugging.
//
//	herdctl -config config.yaml animals
//	herdctl -config config.yaml stats
//	herdctl -config config.yaml pending
//	herdctl -config config.yaml sync
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bartoszzontek/highlander-farm/herdstore"
	"github.com/bartoszzontek/highlander-farm/herdsync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), *configPath, flag.Arg(0), logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, command string, logger *slog.Logger) error {
	cfg, err := herdsync.LoadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := herdstore.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	store.SetLogger(logger)

	remote := herdsync.NewRemoteClient(cfg.BaseURL, tokenFromEnv)
	remote.HTTP.Timeout = cfg.HTTPTimeout.Std()
	repo := herdsync.NewRepository(store, remote, herdsync.AlwaysOnline, logger)
	service := herdsync.NewSyncService(store, remote, herdsync.AlwaysOnline, cfg, logger)

	switch command {
	case "animals":
		return printAnimals(ctx, repo)
	case "stats":
		return printStats(ctx, repo)
	case "pending":
		return printPending(ctx, store)
	case "sync":
		return runSync(ctx, service)
	default:
		return fmt.Errorf("unknown command %q (want animals, stats, pending or sync)", command)
	}
}

// tokenFromEnv reads the bearer token. Interactive login belongs to the
// mobile shell; the CLI expects a ready credential.
func tokenFromEnv(ctx context.Context) (string, error) {
	token := os.Getenv("HERD_TOKEN")
	if token == "" {
		return "", fmt.Errorf("HERD_TOKEN is not set")
	}
	return token, nil
}

func printAnimals(ctx context.Context, repo *herdsync.Repository) error {
	if err := repo.RefreshAnimals(ctx); err != nil {
		return err
	}
	animals, err := repo.Animals(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAG\tNAME\tBREED\tBORN\tSEX")
	for _, a := range animals {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.TagID, a.Name, a.Breed, a.BirthDate, a.Sex)
	}
	return w.Flush()
}

func printStats(ctx context.Context, repo *herdsync.Repository) error {
	stats, err := repo.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("animals: %d\n", stats.Total)
	fmt.Printf("average age: %.1f years\n", stats.AverageAge)
	for sex, n := range stats.BySex {
		fmt.Printf("sex %s: %d\n", sex, n)
	}
	for breed, n := range stats.ByBreed {
		fmt.Printf("breed %s: %d\n", breed, n)
	}
	return nil
}

func printPending(ctx context.Context, store *herdstore.Store) error {
	ops, err := store.PendingOperations(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	for _, op := range ops {
		fmt.Println(op.String())
	}
	return nil
}

func runSync(ctx context.Context, service *herdsync.SyncService) error {
	outcome, err := service.ProcessQueue(ctx)
	if err != nil {
		return err
	}
	if outcome == nil {
		fmt.Println("nothing to do")
		return nil
	}
	fmt.Printf("drained %d, applied %d, failed %d\n", outcome.Drained, outcome.Applied, outcome.Failed)
	return nil
}
