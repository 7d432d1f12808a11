package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Inovico-app/inovy-sub002/internal/config"
	"github.com/Inovico-app/inovy-sub002/internal/memory"
	"github.com/Inovico-app/inovy-sub002/internal/security"
	"github.com/Inovico-app/inovy-sub002/modules/memory/sqlite"
	"github.com/Inovico-app/inovy-sub002/pkg/app"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inovy %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			logLevel, _ := cmd.Flags().GetString("log-level")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				DataDir:    dataDir,
				LogLevel:   logLevel,
			})
		},
	}
	cmd.Flags().String("data-dir", "", "Override the configured data directory")
	cmd.Flags().String("log-level", "", "Override the configured log level")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var dump bool
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and optionally print it with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				cfgPath = args[0]
			}
			cfg, path, err := app.LoadConfig(app.RunParams{ConfigPath: cfgPath})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s\n", path)
			fmt.Fprintf(out, "  providers: %v (chat: %s, summary: %s)\n",
				cfg.Providers.Names(), cfg.Chat.ChatProvider, cfg.Context.SummaryProvider)
			fmt.Fprintf(out, "  storage: %s, audit: %s\n", cfg.Storage.Driver, cfg.Audit.Sink)
			if !dump {
				return nil
			}
			return writeRedacted(out, cfg)
		},
	}
	check.Flags().BoolVar(&dump, "dump", false, "Print the effective configuration")
	cmd.AddCommand(check)
	return cmd
}

// writeRedacted prints cfg as YAML with secrets masked.
func writeRedacted(w io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	redactor := security.NewRedactor()
	creds := security.NewCredentialStore()
	creds.Set("basic_pass", cfg.Server.Auth.BasicPass)
	for k, v := range cfg.Telemetry.Headers {
		creds.Set(k, v)
	}
	redactor.SyncCredentials(creds)
	redactor.RedactMap(doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func notesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage the project notes used as retrieved context",
	}

	var (
		project string
		source  string
		tags    []string
	)
	add := &cobra.Command{
		Use:   "add [file]",
		Short: "Index a note from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				return errors.New("--project is required")
			}
			content, err := readNote(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			store, closeStore, err := openNotes(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			note := memory.Note{
				ID:        uuid.NewString(),
				ProjectID: project,
				Content:   content,
				Source:    source,
				Tags:      tags,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.Index(cmd.Context(), note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed note %s for project %s\n", note.ID, project)
			return nil
		},
	}
	add.Flags().StringVar(&project, "project", "", "Project the note belongs to")
	add.Flags().StringVar(&source, "source", "", "Where the note came from, e.g. a meeting id")
	add.Flags().StringSliceVar(&tags, "tag", nil, "Tag to attach (repeatable)")

	var limit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the notes a query would retrieve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openNotes(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			notes, err := store.Search(cmd.Context(), project, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range notes {
				fmt.Fprintf(out, "%s\t%s\t%s\n", n.ID, n.ProjectID, firstLine(n.Content))
			}
			return nil
		},
	}
	search.Flags().StringVar(&project, "project", "", "Restrict to one project")
	search.Flags().IntVar(&limit, "limit", 5, "Maximum notes to show")

	cmd.AddCommand(add, search)
	return cmd
}

// openNotes opens the configured SQLite note store.
func openNotes(cmd *cobra.Command) (memory.NoteStore, func(), error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := app.LoadConfig(app.RunParams{ConfigPath: cfgPath})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver != config.StorageSQLite {
		return nil, nil, errors.New("notes require storage.driver sqlite")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := app.NewLogger(config.LogConfig{Level: "warn"}, os.Stderr, security.NewRedactor())
	db, err := sqlite.Open(ctx, cfg.Storage.SQLite, cfg.DataDir, logger)
	if err != nil {
		return nil, nil, err
	}
	return db.Notes(), func() { _ = db.Close() }, nil
}

func readNote(stdin io.Reader, args []string) (string, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 1 && args[0] != "-" {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("reading note: %w", err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return "", errors.New("note is empty")
	}
	return content, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return line
}
