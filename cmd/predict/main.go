// Package main is the batch scoring CLI: load a model bundle from a local
// file or the MLflow registry, score a CSV of applicants, and write a
// predictions CSV.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/capserve/capserve/internal/dataset"
	"github.com/capserve/capserve/internal/features"
	"github.com/capserve/capserve/internal/model"
	"github.com/capserve/capserve/internal/registry"
	"github.com/capserve/capserve/internal/scorer"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Path to the applicant CSV to score")
		outPath     = flag.String("out", "", "Output CSV path (default: stdout)")
		bundlePath  = flag.String("bundle", "", "Path to a local bundle file")
		trackingURI = flag.String("tracking-uri", os.Getenv("MLFLOW_TRACKING_URI"), "MLflow tracking server URI")
		modelName   = flag.String("model-name", "credit-approval", "Registered model name")
		stage       = flag.String("stage", "Production", "Registry stage to load from")
		timeout     = flag.Duration("timeout", 60*time.Second, "Registry timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "-data is required")
		os.Exit(1)
	}
	if *bundlePath == "" && *trackingURI == "" {
		fmt.Fprintln(os.Stderr, "either -bundle or -tracking-uri is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bundleBytes, source, err := loadBundleBytes(ctx, *bundlePath, *trackingURI, *modelName, *stage, *timeout)
	if err != nil {
		logger.Error("failed to load bundle", "error", err)
		os.Exit(1)
	}

	bundle, err := scorer.ParseBundle(bundleBytes)
	if err != nil {
		logger.Error("failed to parse bundle", "error", err)
		os.Exit(1)
	}
	pipeline, err := features.Load(bundle.Pipeline)
	if err != nil {
		logger.Error("failed to load feature pipeline", "error", err)
		os.Exit(1)
	}

	logger.Info("model loaded",
		"source", source,
		"flavor", bundle.Metadata.Flavor,
		"threshold", bundle.Metadata.Threshold,
	)

	records, err := dataset.LoadUnlabeledCSV(*dataPath)
	if err != nil {
		logger.Error("failed to load applicants", "path", *dataPath, "error", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			logger.Error("failed to create output file", "path", *outPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	clf := bundle.Scorer()
	threshold := bundle.Metadata.Threshold

	w := csv.NewWriter(out)
	if err := w.Write([]string{"row", "prediction", "probability", "decision"}); err != nil {
		logger.Error("failed to write output", "error", err)
		os.Exit(1)
	}

	approved := 0
	for i, rec := range records {
		x, err := pipeline.TransformRecord(rec)
		if err != nil {
			logger.Error("failed to transform row", "row", i, "error", err)
			os.Exit(1)
		}
		p, err := clf.Score(x)
		if err != nil {
			logger.Error("failed to score row", "row", i, "error", err)
			os.Exit(1)
		}

		label := 0
		if p >= threshold {
			label = 1
			approved++
		}

		row := []string{
			strconv.Itoa(i),
			strconv.Itoa(label),
			strconv.FormatFloat(p, 'f', 6, 64),
			string(model.DecisionForLabel(label)),
		}
		if err := w.Write(row); err != nil {
			logger.Error("failed to write output", "error", err)
			os.Exit(1)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		logger.Error("failed to flush output", "error", err)
		os.Exit(1)
	}

	logger.Info("scoring complete",
		"rows", len(records),
		"approved", approved,
		"rejected", len(records)-approved,
	)
}

// loadBundleBytes reads the bundle from disk or fetches the latest staged
// version from the registry.
func loadBundleBytes(ctx context.Context, bundlePath, trackingURI, modelName, stage string, timeout time.Duration) ([]byte, string, error) {
	if bundlePath != "" {
		data, err := os.ReadFile(bundlePath)
		if err != nil {
			return nil, "", fmt.Errorf("read bundle: %w", err)
		}
		return data, bundlePath, nil
	}

	client := registry.NewClient(trackingURI, timeout)
	version, err := client.GetLatestVersion(ctx, modelName, stage)
	if err != nil {
		return nil, "", fmt.Errorf("resolve model version: %w", err)
	}
	data, err := client.DownloadArtifact(ctx, version.RunID, scorer.BundleArtifactPath)
	if err != nil {
		return nil, "", fmt.Errorf("download bundle: %w", err)
	}

	source := fmt.Sprintf("%s/%s v%s", modelName, stage, version.Version)
	return data, source, nil
}
