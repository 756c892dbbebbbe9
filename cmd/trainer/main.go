// Command trainer runs one training job over a record window and registers
// the resulting model. It exits non-zero when the window cannot produce a
// model, so schedulers can alert on repeated failures.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/classification/internal/config"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/engine"
	persistence "example.com/classification/internal/persistence/postgres"
	"example.com/classification/internal/registry"
)

func main() {
	var (
		tenantID = flag.String("tenant", "", "tenant to train for (required)")
		fromRaw  = flag.String("from", "", "training window start, RFC3339 (default: 90 days ago)")
		toRaw    = flag.String("to", "", "training window end, RFC3339 (default: now)")
		parentID = flag.String("parent", "", "parent model id for lineage (optional)")
		activate = flag.Bool("activate", false, "activate the model after a successful registration")
	)
	flag.Parse()

	if *tenantID == "" {
		log.Fatal("missing required -tenant flag")
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -90)
	if *fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, *fromRaw)
		if err != nil {
			log.Fatalf("invalid -from: %v", err)
		}
		from = parsed
	}
	if *toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, *toRaw)
		if err != nil {
			log.Fatalf("invalid -to: %v", err)
		}
		to = parsed
	}
	if !to.After(from) {
		log.Fatalf("window end %s must be after start %s", to, from)
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	models := registry.NewService(repo)
	trainer := engine.NewTrainer(repo, models, cfg.TrainingSeed)

	var parent *string
	if *parentID != "" {
		parent = parentID
	}

	model, invalid, err := trainer.Train(ctx, *tenantID, from, to, parent)
	for _, flagged := range invalid {
		log.Printf("excluded invalid record %s (%s %s)", flagged.RecordID, flagged.Field, flagged.Reason)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientTrainingData) {
			log.Fatalf("window [%s, %s) holds too few valid records to cluster", from.Format(time.RFC3339), to.Format(time.RFC3339))
		}
		log.Fatalf("training failed: %v", err)
	}

	log.Printf("registered model %s version %s (training_size=%d inertia=%.4f)",
		model.ID, model.Version, model.Metrics.TrainingSize, model.Metrics.Inertia)

	if *activate {
		if err := models.Activate(ctx, *tenantID, model.ID); err != nil {
			log.Fatalf("activation failed: %v", err)
		}
		log.Printf("activated model %s", model.ID)
	}
}
