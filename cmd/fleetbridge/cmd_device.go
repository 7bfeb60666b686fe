package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fleetbridge/fleetbridge/internal/config"
	"github.com/fleetbridge/fleetbridge/internal/roster"
	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/internal/store"
	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// runDevice manages the roster from the command line, against the same
// database the server uses. Run it while the server is stopped, or point
// it at the HTTP API instead for a live system.
func runDevice(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fleetbridge device <add|list> [flags]")
		os.Exit(2)
	}
	switch args[0] {
	case "add":
		runDeviceAdd(args[1:])
	case "list":
		runDeviceList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown device subcommand %q\n", args[0])
		os.Exit(2)
	}
}

func runDeviceAdd(args []string) {
	fs := flag.NewFlagSet("device add", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	id := fs.String("id", "", "device id (required)")
	name := fs.String("name", "", "display name")
	category := fs.String("category", string(models.CategoryEdgeComputer), "device category: edge_computer or iot_sensor")
	host := fs.String("host", "", "SSH host (edge computers; ~/.ssh/config fills gaps)")
	port := fs.Int("port", 0, "SSH port")
	user := fs.String("user", "", "SSH user")
	keyPath := fs.String("key", "", "path to an SSH private key file (skips the password prompt)")
	notes := fs.String("notes", "", "free-form notes")
	caps := fs.String("caps", "", "comma-separated capability list (sensors)")
	_ = fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "device add: -id is required")
		os.Exit(2)
	}
	cat := models.DeviceCategory(*category)
	if !cat.Valid() {
		fmt.Fprintf(os.Stderr, "device add: invalid category %q (want %s or %s)\n",
			*category, models.CategoryEdgeComputer, models.CategoryIoTSensor)
		os.Exit(2)
	}

	ctx := context.Background()
	mod, db, err := openRoster(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "device add: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	device := &models.Device{
		ID:       *id,
		Name:     *name,
		Category: cat,
		Host:     *host,
		Port:     *port,
		User:     *user,
		Notes:    *notes,
	}
	if *caps != "" {
		for _, c := range strings.Split(*caps, ",") {
			if c = strings.TrimSpace(c); c != "" {
				device.Capabilities = append(device.Capabilities, c)
			}
		}
	}

	promptHost := *host
	if promptHost == "" {
		promptHost = *id
	}
	cred, err := collectCredential(cat, *keyPath, *user, promptHost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "device add: %v\n", err)
		os.Exit(1)
	}

	if err := mod.Register(ctx, device, cred); err != nil {
		fmt.Fprintf(os.Stderr, "device add: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("device %s registered\n", device.ID)
}

// collectCredential reads the SSH secret for an edge computer: from the
// key file when -key is given, otherwise prompted. The secret never
// appears on argv. Sensors are not dialed and carry no credential.
func collectCredential(cat models.DeviceCategory, keyPath, user, host string) (*models.Credential, error) {
	if cat != models.CategoryEdgeComputer {
		return nil, nil
	}

	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		return &models.Credential{Kind: models.CredentialPrivateKey, Secret: string(key)}, nil
	}

	label := host
	if user != "" {
		label = user + "@" + host
	}
	fmt.Fprintf(os.Stderr, "SSH password for %s (empty to store none): ", label)

	var secret []byte
	var err error
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err = term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
	} else {
		line, readErr := bufio.NewReader(os.Stdin).ReadString('\n')
		secret, err = []byte(strings.TrimRight(line, "\r\n")), readErr
	}
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	if len(secret) == 0 {
		return nil, nil
	}
	return &models.Credential{Kind: models.CredentialPassword, Secret: string(secret)}, nil
}

func runDeviceList(args []string) {
	fs := flag.NewFlagSet("device list", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	_ = fs.Parse(args)

	ctx := context.Background()
	mod, db, err := openRoster(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "device list: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	devices, err := mod.Devices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "device list: %v\n", err)
		os.Exit(1)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tENDPOINT\tNAME")
	for _, d := range devices {
		endpoint := "-"
		if d.Host != "" {
			endpoint = fmt.Sprintf("%s:%d", d.Host, d.Port)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Category, endpoint, d.Name)
	}
	_ = tw.Flush()
}

// openRoster initializes a standalone roster module over the configured
// database, reusing the module's own migrations and credential sealing.
func openRoster(ctx context.Context, configPath string) (*roster.Module, *store.SQLiteStore, error) {
	viperCfg, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "fleetbridge.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	pv := viper.New()
	pv.Set("passphrase", viperCfg.GetString("plugins.roster.passphrase"))

	mod := roster.New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(pv),
		Store:  db,
	}
	if err := mod.Init(ctx, deps); err != nil {
		db.Close()
		return nil, nil, err
	}
	return mod, db, nil
}
