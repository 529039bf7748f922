// ABOUTME: Entry point for the tandem-chat demo client
// ABOUTME: Drives the messaging engine from a terminal: seed demo data, then chat

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/tandemlearn/messaging/internal/config"
	"github.com/tandemlearn/messaging/internal/messaging"
	"github.com/tandemlearn/messaging/internal/profile"
	"github.com/tandemlearn/messaging/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                  _                             _           _
| |_ __ _ _ __   __| | ___ _ __ ___        ___ | |__   __ _| |_
| __/ _' | '_ \ / _' |/ _ \ '_ ' _ \ _____ / __|| '_ \ / _' | __|
| || (_| | | | | (_| |  __/ | | | | |_____| (__ | | | | (_| | |_
 \__\__,_|_| |_|\__,_|\___|_| |_| |_|      \___||_| |_|\__,_|\__|
`

// getConfigPath returns the path to the config file.
// Priority: TANDEM_CONFIG env var > XDG_CONFIG_HOME/tandem/chat.yaml > ~/.config/tandem/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TANDEM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tandem", "chat.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tandem-chat <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  chat --user ID [--name NAME] [--peer ID]  Start an interactive session")
		fmt.Println("  seed                                      Seed demo users and conversations")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(ctx, os.Args[2:])
	case "seed":
		err = runSeed(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

// runSeed populates the store with two demo users and a deliberately
// duplicated conversation pair, so the first chat session demonstrates the
// deduplication pass.
func runSeed(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	profiles, err := profile.NewSQLiteStore(st.DB())
	if err != nil {
		return fmt.Errorf("opening profile store: %w", err)
	}

	users := map[string]*profile.Snapshot{
		"alice": {Name: "Alice", Role: "mentor", Location: "Lisbon"},
		"bob":   {Name: "Bob", Role: "learner", Location: "Berlin"},
	}
	for id, snap := range users {
		if err := profiles.Upsert(ctx, id, snap); err != nil {
			return fmt.Errorf("seeding profile %s: %w", id, err)
		}
	}

	// Two records for the same pair. The engine keeps the one with the
	// newest activity and purges the other on first load.
	stale := &store.Conversation{Participants: []string{"alice", "bob"}}
	if err := st.CreateConversation(ctx, stale); err != nil {
		return fmt.Errorf("seeding conversation: %w", err)
	}
	live := &store.Conversation{Participants: []string{"alice", "bob"}}
	if err := st.CreateConversation(ctx, live); err != nil {
		return fmt.Errorf("seeding conversation: %w", err)
	}
	if err := st.CreateMessage(ctx, &store.Message{
		ConversationID: live.ID,
		SenderID:       "bob",
		SenderName:     "Bob",
		Text:           "hey, ready to practice?",
	}); err != nil {
		return fmt.Errorf("seeding message: %w", err)
	}
	if err := st.UpdateConversationSummary(ctx, live.ID, "hey, ready to practice?"); err != nil {
		return fmt.Errorf("seeding summary: %w", err)
	}

	green.Printf("  ✓ Config:   %s\n", configPath)
	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)
	green.Printf("  ✓ Seeded users: alice, bob\n")
	green.Printf("  ✓ Seeded a duplicated alice/bob conversation pair\n")
	fmt.Println()
	fmt.Println("Try it:")
	fmt.Println("  tandem-chat chat --user alice --peer bob")
	return nil
}

type chatFlags struct {
	userID string
	name   string
	peerID string
}

func parseChatFlags(args []string) (chatFlags, error) {
	var f chatFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch {
		case arg == "--user" || arg == "-u":
			f.userID, err = next()
		case arg == "--name":
			f.name, err = next()
		case arg == "--peer" || arg == "-p":
			f.peerID, err = next()
		case strings.HasPrefix(arg, "--user="):
			f.userID = strings.TrimPrefix(arg, "--user=")
		case strings.HasPrefix(arg, "--name="):
			f.name = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "--peer="):
			f.peerID = strings.TrimPrefix(arg, "--peer=")
		default:
			return f, fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return f, err
		}
	}
	if f.userID == "" {
		return f, fmt.Errorf("--user flag is required")
	}
	return f, nil
}

func runChat(ctx context.Context, args []string) error {
	flags, err := parseChatFlags(args)
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	logger, cleanup, err := cfg.Logging.SetupLogger()
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer cleanup()

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("User:     %s\n", flags.userID)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	profiles, err := profile.NewSQLiteStore(st.DB())
	if err != nil {
		return fmt.Errorf("opening profile store: %w", err)
	}

	svc := messaging.NewService(st, profiles, logger)
	defer svc.Close()

	if err := svc.Start(messaging.Identity{ID: flags.userID, Name: flags.name}); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	if flags.peerID != "" {
		if err := selectPeer(ctx, st, svc, flags.userID, flags.peerID); err != nil {
			return err
		}
	}

	go renderLoop(ctx, svc, flags.userID)

	return inputLoop(ctx, svc)
}

// selectPeer finds the conversation with peerID, creating one when none
// exists, and selects it as the active feed. With duplicates still present
// any record for the pair works; the engine converges on the winner.
func selectPeer(ctx context.Context, st store.Store, svc *messaging.Service, userID, peerID string) error {
	convs, err := st.ListConversationsByParticipant(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	key := messaging.ParticipantKey(userID, peerID)
	for _, conv := range convs {
		other := conv.OtherParticipant(userID)
		if other != "" && messaging.ParticipantKey(userID, other) == key {
			return svc.SelectConversation(conv.ID)
		}
	}

	conv := &store.Conversation{Participants: []string{userID, peerID}}
	if err := st.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return svc.SelectConversation(conv.ID)
}

// renderLoop prints every conversation list and message feed update until
// the context ends.
func renderLoop(ctx context.Context, svc *messaging.Service, userID string) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	bold := color.New(color.Bold)

	for {
		select {
		case <-ctx.Done():
			return
		case views := <-svc.Conversations():
			cyan.Println("  Conversations")
			cyan.Println("  -------------")
			if len(views) == 0 {
				gray.Println("  (none yet)")
			}
			for _, v := range views {
				fmt.Printf("  %s", v.Other.Name)
				if v.Other.Role != "" {
					gray.Printf(" [%s]", v.Other.Role)
				}
				if v.LastMessage != "" {
					gray.Printf("  %s", v.LastMessage)
				}
				fmt.Println()
			}
			fmt.Println()
		case msgs := <-svc.Messages():
			for _, msg := range msgs {
				stamp := gray.Sprint(msg.Timestamp.Local().Format("15:04"))
				name := msg.SenderName
				if msg.SenderID == userID {
					name = bold.Sprint(name)
				}
				fmt.Printf("  %s %s: %s\n", stamp, name, msg.Text)
			}
			fmt.Println()
		}
	}
}

// inputLoop reads lines from stdin and sends each as a message. EOF or
// context cancellation ends the session.
func inputLoop(ctx context.Context, svc *messaging.Service) error {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := svc.SendMessage(sendCtx, line)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}
