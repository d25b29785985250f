package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hashfleet/hashfleet/internal/backup"
	"github.com/hashfleet/hashfleet/internal/server"
)

// runBackup implements the "backup" subcommand: archive the database and
// config file into a tar.gz.
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	output := fs.String("output", "", "output archive path (default hashfleet-backup-<date>.tar.gz)")
	fs.Parse(args)

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "hashfleet.db"
	}

	archivePath := *output
	if archivePath == "" {
		archivePath = fmt.Sprintf("hashfleet-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	if err := backup.Backup(context.Background(), dbPath, viperCfg.ConfigFileUsed(), archivePath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archivePath)
}

// runRestore implements the "restore" subcommand: extract a backup archive
// into a target directory.
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	target := fs.String("target", ".", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: hashfleet restore [--target dir] [--force] <archive.tar.gz>")
		os.Exit(2)
	}

	if err := backup.Restore(context.Background(), fs.Arg(0), *target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored into %s\n", *target)
}
