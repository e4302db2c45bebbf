package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command>

commands:
  up               apply every pending migration
  down             roll back the latest migration
  status           list migrations and when they were applied
  version <v>      migrate up or down to version v (YYYYMMDDHHMMSS)
  create <name>    write an empty migration into -dir (default ` + migrate.DefaultDir + `)
  validate         check filenames and goose markers

Without -dir the migrations embedded in the binary are used.
`

var errUsage = errors.New("invalid usage")

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	_ = godotenv.Load()

	if err := run(context.Background(), *dir, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	// create and validate only touch files.
	switch command {
	case "create":
		if len(rest) != 1 {
			return errUsage
		}
		target := dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, rest[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		source, err := migrate.Source(dir)
		if err != nil {
			return err
		}
		if err := migrate.ValidateFS(source); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": command})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	source, err := migrate.Source(dir)
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, source, logg)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "version":
		if len(rest) != 1 {
			return errUsage
		}
		target, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("version %q: %w", rest[0], err)
		}
		return migrator.To(ctx, target)
	default:
		return printStatus(ctx, migrator)
	}
}

func printStatus(ctx context.Context, migrator *migrate.Migrator) error {
	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, status := range statuses {
		applied := "-"
		if !status.AppliedAt.IsZero() {
			applied = status.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", status.Source.Version, status.State, applied, status.Source.Path)
	}
	return tw.Flush()
}
