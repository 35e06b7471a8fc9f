// Package main is the training pipeline entrypoint: load data, fit the
// preprocessing pipeline and a classifier, evaluate, and log the resulting
// bundle to the MLflow registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/capserve/capserve/internal/dataset"
	"github.com/capserve/capserve/internal/features"
	"github.com/capserve/capserve/internal/registry"
	"github.com/capserve/capserve/internal/scorer"
	"github.com/capserve/capserve/internal/training"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Path to the labeled training CSV")
		sampleSize  = flag.Int("sample", 0, "Generate a synthetic dataset of this size instead of reading a CSV")
		flavor      = flag.String("flavor", scorer.FlavorLinear, "Model flavor: linear or gbdt")
		modelName   = flag.String("model-name", "credit-approval", "Registered model name")
		experiment  = flag.String("experiment", "credit-approval", "MLflow experiment name")
		stage       = flag.String("stage", "", "Transition the new version to this stage (e.g. Production)")
		trackingURI = flag.String("tracking-uri", os.Getenv("MLFLOW_TRACKING_URI"), "MLflow tracking server URI")
		outPath     = flag.String("out", "", "Also write the bundle to this local file")
		impute      = flag.String("impute", features.ImputeMedian, "Numeric imputation: median or mean")
		scaling     = flag.String("scaling", features.ScaleStandard, "Feature scaling: standard, minmax or robust")
		testSize    = flag.Float64("test-size", 0.2, "Test split fraction")
		valSize     = flag.Float64("val-size", 0.15, "Validation split fraction")
		seed        = flag.Int64("seed", 42, "Random seed for splits and training")
		epochs      = flag.Int("epochs", 0, "Logistic regression epochs (0 = default)")
		trees       = flag.Int("trees", 0, "GBDT rounds (0 = default)")
		timeout     = flag.Duration("timeout", 5*time.Minute, "Overall registry timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *dataPath == "" && *sampleSize == 0 {
		fmt.Fprintln(os.Stderr, "either -data or -sample is required")
		os.Exit(1)
	}
	if *flavor != scorer.FlavorLinear && *flavor != scorer.FlavorGBDT {
		fmt.Fprintln(os.Stderr, "flavor must be linear or gbdt")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Load data
	var records []dataset.Record
	var err error
	if *dataPath != "" {
		records, err = dataset.LoadCSV(*dataPath)
		if err != nil {
			logger.Error("failed to load training data", "path", *dataPath, "error", err)
			os.Exit(1)
		}
	} else {
		records = dataset.GenerateSample(*sampleSize, *seed)
		logger.Info("generated synthetic dataset", "rows", *sampleSize)
	}

	summary, err := dataset.Validate(records)
	if err != nil {
		logger.Error("training data failed validation", "error", err)
		os.Exit(1)
	}
	logger.Info("dataset loaded",
		"rows", summary.Rows,
		"positive", summary.Positive,
		"negative", summary.Negative,
		"positive_rate", fmt.Sprintf("%.3f", summary.PositiveRate()),
		"missing_cells", summary.MissingCells,
	)

	split, err := dataset.StratifiedSplit(records, *testSize, *valSize, *seed)
	if err != nil {
		logger.Error("failed to split dataset", "error", err)
		os.Exit(1)
	}

	// Fit the preprocessing pipeline on training data only
	pipeline, err := features.Fit(split.Train, features.Config{
		NumericImpute: *impute,
		Scaling:       *scaling,
	})
	if err != nil {
		logger.Error("failed to fit feature pipeline", "error", err)
		os.Exit(1)
	}

	XTrain, err := pipeline.Transform(split.Train)
	if err != nil {
		logger.Error("failed to transform training data", "error", err)
		os.Exit(1)
	}
	XVal, err := pipeline.Transform(split.Validation)
	if err != nil {
		logger.Error("failed to transform validation data", "error", err)
		os.Exit(1)
	}
	XTest, err := pipeline.Transform(split.Test)
	if err != nil {
		logger.Error("failed to transform test data", "error", err)
		os.Exit(1)
	}

	yTrain := dataset.Labels(split.Train)
	yVal := dataset.Labels(split.Validation)
	yTest := dataset.Labels(split.Test)

	// Train
	var clf scorer.Scorer
	params := []registry.Param{
		{Key: "flavor", Value: *flavor},
		{Key: "impute", Value: *impute},
		{Key: "scaling", Value: *scaling},
		{Key: "seed", Value: strconv.FormatInt(*seed, 10)},
		{Key: "train_rows", Value: strconv.Itoa(len(XTrain))},
		{Key: "features", Value: strconv.Itoa(len(pipeline.FeatureNames()))},
	}

	start := time.Now()
	switch *flavor {
	case scorer.FlavorLinear:
		clf, err = training.TrainLogistic(XTrain, yTrain, training.LogisticConfig{
			Epochs:         *epochs,
			BalanceClasses: true,
			Seed:           *seed,
		})
	case scorer.FlavorGBDT:
		clf, err = training.TrainGBDT(XTrain, yTrain, training.GBDTConfig{
			Trees: *trees,
		})
	}
	if err != nil {
		logger.Error("training failed", "flavor", *flavor, "error", err)
		os.Exit(1)
	}
	logger.Info("model trained", "flavor", *flavor, "duration", time.Since(start))

	// Pick the decision threshold on validation data, report on test data
	valProbs := score(clf, XVal)
	threshold := training.OptimalThreshold(valProbs, yVal)

	testProbs := score(clf, XTest)
	m := training.Evaluate(testProbs, yTest, threshold)
	logger.Info("evaluation",
		"threshold", fmt.Sprintf("%.3f", threshold),
		"accuracy", fmt.Sprintf("%.4f", m.Accuracy),
		"precision", fmt.Sprintf("%.4f", m.Precision),
		"recall", fmt.Sprintf("%.4f", m.Recall),
		"f1", fmt.Sprintf("%.4f", m.F1),
		"roc_auc", fmt.Sprintf("%.4f", m.ROCAUC),
	)

	metricValues := map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
		"roc_auc":   m.ROCAUC,
		"threshold": threshold,
	}

	// Assemble the bundle
	pipelineJSON, err := pipeline.Encode()
	if err != nil {
		logger.Error("failed to encode pipeline", "error", err)
		os.Exit(1)
	}

	meta := scorer.Metadata{
		ModelName:    *modelName,
		Flavor:       *flavor,
		Threshold:    threshold,
		FeatureNames: pipeline.FeatureNames(),
		TrainedAt:    time.Now().UTC(),
		Metrics:      metricValues,
	}

	bundle, err := scorer.EncodeBundle(meta, clf, pipelineJSON)
	if err != nil {
		logger.Error("failed to encode bundle", "error", err)
		os.Exit(1)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, bundle, 0o644); err != nil {
			logger.Error("failed to write bundle", "path", *outPath, "error", err)
			os.Exit(1)
		}
		logger.Info("bundle written", "path", *outPath, "bytes", len(bundle))
	}

	if *trackingURI == "" {
		logger.Info("no tracking URI configured, skipping registry")
		return
	}

	if err := register(ctx, logger, *trackingURI, *timeout, *experiment, *modelName, *stage, params, metricValues, bundle); err != nil {
		logger.Error("failed to register model", "error", err)
		os.Exit(1)
	}
}

// score runs the classifier over a feature matrix.
func score(clf scorer.Scorer, X [][]float64) []float64 {
	probs := make([]float64, len(X))
	for i, x := range X {
		probs[i], _ = clf.Score(x)
	}
	return probs
}

// register logs the run and bundle to MLflow and registers a new model version.
func register(
	ctx context.Context,
	logger *slog.Logger,
	trackingURI string,
	timeout time.Duration,
	experiment, modelName, stage string,
	params []registry.Param,
	metricValues map[string]float64,
	bundle []byte,
) error {
	client := registry.NewClient(trackingURI, timeout)

	exp, err := client.EnsureExperiment(ctx, experiment)
	if err != nil {
		return fmt.Errorf("ensure experiment: %w", err)
	}

	run, err := client.CreateRun(ctx, exp.ID, modelName+"-"+time.Now().UTC().Format("20060102-150405"))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	now := time.Now().UnixMilli()
	runMetrics := make([]registry.Metric, 0, len(metricValues))
	for k, v := range metricValues {
		runMetrics = append(runMetrics, registry.Metric{Key: k, Value: v, Timestamp: now})
	}

	if err := client.LogBatch(ctx, run.ID, params, runMetrics); err != nil {
		_ = client.FinishRun(ctx, run.ID, true)
		return fmt.Errorf("log params and metrics: %w", err)
	}

	if err := client.UploadArtifact(ctx, run, scorer.BundleArtifactPath, bundle); err != nil {
		_ = client.FinishRun(ctx, run.ID, true)
		return fmt.Errorf("upload bundle: %w", err)
	}

	version, err := client.RegisterVersion(ctx, modelName, run)
	if err != nil {
		_ = client.FinishRun(ctx, run.ID, true)
		return fmt.Errorf("register version: %w", err)
	}
	logger.Info("model version registered",
		"model_name", modelName,
		"version", version.Version,
		"run_id", run.ID,
	)

	if stage != "" {
		if err := client.TransitionStage(ctx, modelName, version.Version, stage); err != nil {
			_ = client.FinishRun(ctx, run.ID, true)
			return fmt.Errorf("transition stage: %w", err)
		}
		logger.Info("model version staged", "version", version.Version, "stage", stage)
	}

	return client.FinishRun(ctx, run.ID, false)
}
