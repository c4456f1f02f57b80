package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/RubachokBoss/plagiarism-ledger/internal/app"
	"github.com/RubachokBoss/plagiarism-ledger/internal/codec"
	"github.com/RubachokBoss/plagiarism-ledger/internal/config"
	"github.com/RubachokBoss/plagiarism-ledger/internal/database"
	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/RubachokBoss/plagiarism-ledger/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServer()
			return
		case "migrate":
			direction := "up"
			var args []string
			if len(os.Args) > 2 {
				direction = os.Args[2]
				args = os.Args[3:]
			}
			runMigrations(direction, args)
			return
		case "worker":
			runWorker()
			return
		case "verify":
			os.Exit(runVerify(os.Args[2:]))
		case "check":
			os.Exit(runCheck(os.Args[2:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\nusage: %s [serve|migrate up|down|force <version>|version|worker|verify <file>|check <fileA> <fileB>]\n", os.Args[1], os.Args[0])
			os.Exit(2)
		}
	}

	runServer()
}

func loadConfig() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	return cfg, logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
}

func runServer() {
	cfg, log := loadConfig()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	go func() {
		if err := application.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to run application")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}
}

func runMigrations(direction string, args []string) {
	cfg, log := loadConfig()

	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	case "force":
		if len(args) != 1 {
			log.Fatal().Msg("Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid migration version")
		}
		if err := migrator.Force(version); err != nil {
			log.Fatal().Err(err).Msg("Failed to force migration version")
		}
		log.Info().Int("version", version).Msg("Migration version forced")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
	default:
		log.Fatal().Msg("Invalid migration command. Use 'up', 'down', 'force <version>' or 'version'")
	}
}

func runWorker() {
	cfg, log := loadConfig()

	application, err := app.NewWorker(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	log.Info().Msg("Starting standalone worker...")
	if err := application.RunWorker(ctx); err != nil {
		log.Error().Err(err).Msg("Worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}
}

// runVerify exits 0 for a valid chain, 1 for an invalid one and 2 when the
// file cannot be read.
func runVerify(args []string) int {
	cfg, log := loadConfig()

	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	formatName := fs.String("format", "", "ledger format (delimited|jsonl), detected from the extension by default")
	_ = fs.Parse(args)

	path := cfg.Ledger.Path
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	fallback, err := codec.ParseFormat(cfg.Ledger.Format)
	if err != nil {
		log.Error().Err(err).Msg("Invalid ledger format")
		return 2
	}
	format := app.FormatForPath(path, fallback)
	if *formatName != "" {
		if format, err = codec.ParseFormat(*formatName); err != nil {
			log.Error().Err(err).Msg("Invalid ledger format")
			return 2
		}
	}

	report, err := app.VerifyFile(path, format)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read ledger")
		return 2
	}

	for _, skipped := range report.Skipped {
		log.Warn().Int("line", skipped.Line).Str("reason", skipped.Reason).Msg("Skipped corrupt line")
	}

	var verr *ledger.ValidationError
	switch {
	case report.Valid():
		fmt.Printf("%s: valid (%d entries, %d skipped lines)\n", path, report.Entries, len(report.Skipped))
		return 0
	case errors.As(report.Err, &verr):
		fmt.Printf("%s: INVALID at entry %d: %s\n", path, verr.Index, verr.Violation)
	default:
		fmt.Printf("%s: INVALID: %v\n", path, report.Err)
	}
	return 1
}

func runCheck(args []string) int {
	cfg, log := loadConfig()

	fs := flag.NewFlagSet("check", flag.ExitOnError)
	algorithmName := fs.String("algorithm", cfg.Analysis.DefaultAlgorithm, "cosine|jaccard|levenshtein|ngram")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: check [-algorithm name] <fileA> <fileB>")
		return 2
	}

	alg, known := analyzer.ParseAlgorithm(*algorithmName)
	if !known {
		log.Warn().Str("algorithm", *algorithmName).Str("fallback", alg.String()).Msg("Unknown algorithm")
	}

	result, err := app.CompareFiles(fs.Arg(0), fs.Arg(1), alg, analyzer.Thresholds{
		Safe: cfg.Analysis.SafeThreshold,
		High: cfg.Analysis.HighThreshold,
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("Check failed")
		return 2
	}

	fmt.Printf("algorithm: %s\nscore: %.4f\nsimilarity: %.2f%%\nverdict: %s\n",
		result.Algorithm, result.Score, result.Percent, result.Verdict.Label())
	return 0
}
