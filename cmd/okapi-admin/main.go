package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/okapimail/okapi/config"
	"github.com/okapimail/okapi/db"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "create-user":
		handleCreateUser()
	case "set-auto-label":
		handleSetAutoLabel()
	case "list-users":
		handleListUsers()
	case "safe-sender":
		handleSenderList("safe")
	case "blocked-sender":
		handleSenderList("blocked")
	case "empty-trash":
		handleEmptyTrash()
	case "repair-threads":
		handleRepairThreads()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`OKAPI Admin Tool

Usage:
  okapi-admin <command> [options]

Commands:
  create-user      Register a local mailbox address
  set-auto-label   Enable or disable classifier labeling for a user
  list-users       List all registered mailbox addresses
  safe-sender      Manage a user's safe sender list (add/remove/list)
  blocked-sender   Manage a user's blocked sender list (add/remove/list)
  empty-trash      Permanently remove a user's trashed messages
  repair-threads   Backfill threading metadata for old messages
  help             Show this help message

Examples:
  okapi-admin create-user --email user@example.com --name "Jamie Doe"
  okapi-admin set-auto-label --email user@example.com --enabled
  okapi-admin safe-sender add --email user@example.com --sender friend@remote.example
  okapi-admin blocked-sender list --email user@example.com
  okapi-admin repair-threads --concurrency 8

Use 'okapi-admin <command> --help' for more information about a command.
`)
}

// openDatabase loads the config file and connects with the main database
// settings. Admin commands reuse the server's configuration.
func openDatabase(ctx context.Context, configPath string) *db.Database {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	database, err := db.NewDatabaseFromConfig(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return database
}

func handleCreateUser() {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Email address for the new user (required)")
	name := fs.String("name", "", "Display name")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}
	if *email == "" {
		log.Fatal("--email is required")
	}

	ctx := context.Background()
	database := openDatabase(ctx, *configPath)
	defer database.Close()

	if err := database.CreateUser(ctx, *email, *name); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	fmt.Printf("User %s created\n", *email)
}

func handleSetAutoLabel() {
	fs := flag.NewFlagSet("set-auto-label", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "User address (required)")
	enabled := fs.Bool("enabled", false, "Enable classifier labeling for the user")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}
	if *email == "" {
		log.Fatal("--email is required")
	}

	ctx := context.Background()
	database := openDatabase(ctx, *configPath)
	defer database.Close()

	if err := database.SetAutoLabel(ctx, *email, *enabled); err != nil {
		log.Fatalf("Failed to update auto-label: %v", err)
	}
	fmt.Printf("Auto-label for %s set to %v\n", *email, *enabled)
}

func handleListUsers() {
	fs := flag.NewFlagSet("list-users", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	ctx := context.Background()
	database := openDatabase(ctx, *configPath)
	defer database.Close()

	addresses, err := database.ListLocalAddresses(ctx)
	if err != nil {
		log.Fatalf("Failed to list users: %v", err)
	}
	sorted := make([]string, 0, len(addresses))
	for addr := range addresses {
		sorted = append(sorted, addr)
	}
	sort.Strings(sorted)
	for _, addr := range sorted {
		fmt.Println(addr)
	}
}

func handleSenderList(kind string) {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: okapi-admin %s-sender <add|remove|list> [options]", kind)
	}
	action := os.Args[2]

	fs := flag.NewFlagSet(kind+"-sender "+action, flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "User address (required)")
	sender := fs.String("sender", "", "Sender address (required for add/remove)")
	if err := fs.Parse(os.Args[3:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}
	if *email == "" {
		log.Fatal("--email is required")
	}

	ctx := context.Background()
	database := openDatabase(ctx, *configPath)
	defer database.Close()

	var err error
	switch action {
	case "add":
		if *sender == "" {
			log.Fatal("--sender is required")
		}
		if kind == "safe" {
			err = database.AddSafeSender(ctx, *email, *sender)
		} else {
			err = database.AddBlockedSender(ctx, *email, *sender)
		}
	case "remove":
		if *sender == "" {
			log.Fatal("--sender is required")
		}
		if kind == "safe" {
			err = database.RemoveSafeSender(ctx, *email, *sender)
		} else {
			err = database.RemoveBlockedSender(ctx, *email, *sender)
		}
	case "list":
		var senders []string
		if kind == "safe" {
			senders, err = database.ListSafeSenders(ctx, *email)
		} else {
			senders, err = database.ListBlockedSenders(ctx, *email)
		}
		if err == nil {
			for _, s := range senders {
				fmt.Println(s)
			}
		}
	default:
		log.Fatalf("Unknown action %q (expected add, remove, or list)", action)
	}
	if err != nil {
		log.Fatalf("Failed to %s %s sender: %v", action, kind, err)
	}
}

func handleEmptyTrash() {
	fs := flag.NewFlagSet("empty-trash", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "User address (required)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}
	if *email == "" {
		log.Fatal("--email is required")
	}

	ctx := context.Background()
	database := openDatabase(ctx, *configPath)
	defer database.Close()

	removed, err := database.EmptyTrash(ctx, *email)
	if err != nil {
		log.Fatalf("Failed to empty trash: %v", err)
	}
	fmt.Printf("Removed %d message(s) from trash for %s\n", removed, *email)
}

func handleRepairThreads() {
	fs := flag.NewFlagSet("repair-threads", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	concurrency := fs.Int("concurrency", 8, "Number of parallel repair workers")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	ctx := context.Background()
	database := openDatabase(ctx, *configPath)
	defer database.Close()

	repaired, err := database.RepairThreads(ctx, *concurrency)
	if err != nil {
		log.Fatalf("Thread repair failed: %v", err)
	}
	fmt.Printf("Repaired threading metadata on %d message(s)\n", repaired)
}
