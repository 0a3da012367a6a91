package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/repository"
)

func main() {
	flagSet := flag.NewFlagSet("seed", flag.ContinueOnError)
	var (
		file    string
		dryRun  bool
		timeout time.Duration
	)
	flagSet.StringVarP(&file, "file", "f", "seed.yaml", "YAML file with forms, questions and students")
	flagSet.BoolVar(&dryRun, "dry-run", false, "Validate the file without writing")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall deadline for the import")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	f, err := os.Open(file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open seed file")
	}
	seed, err := ParseSeedFile(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Seed file rejected")
	}

	log.Info().
		Int("forms", len(seed.Forms)).
		Int("students", len(seed.Students)).
		Msg("Seed file valid")
	if dryRun {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db := database.NewManager(cfg, log)
	defer db.Close()

	formRepo := repository.NewFormRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	for _, sf := range seed.Forms {
		form, questions := sf.Form()
		if err := formRepo.ReplaceForm(ctx, form, questions); err != nil {
			log.Fatal().Err(err).Str("form_id", form.ID).Msg("Failed to write form")
		}
		log.Info().Str("form_id", form.ID).Int("questions", len(questions)).Msg("Form written")
	}

	for _, ss := range seed.Students {
		if err := studentRepo.Upsert(ctx, ss.Student()); err != nil {
			log.Fatal().Err(err).Str("roll_number", ss.RollNumber).Msg("Failed to write student")
		}
	}
	log.Info().Int("students", len(seed.Students)).Msg("Students written")

	fmt.Println("=== Seeding complete ===")
}
