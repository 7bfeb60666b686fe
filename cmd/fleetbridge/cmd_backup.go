package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/backup"
	"github.com/fleetbridge/fleetbridge/internal/server"
)

// runBackup archives the database (and the config file, when one was
// loaded) into a gzipped tarball.
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	out := fs.String("out", "", "archive path (default fleetbridge-backup-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "fleetbridge.db"
	}
	archivePath := *out
	if archivePath == "" {
		archivePath = fmt.Sprintf("fleetbridge-backup-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
	}

	if err := backup.Backup(context.Background(), dbPath, viperCfg.ConfigFileUsed(), archivePath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archivePath)
}

// runRestore extracts a backup archive. The server must not be running
// against the target database while this happens.
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	target := fs.String("target", ".", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fleetbridge restore [flags] <archive.tar.gz>")
		os.Exit(2)
	}

	if err := backup.Restore(context.Background(), fs.Arg(0), *target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored into %s\n", *target)
}
