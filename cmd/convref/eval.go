package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/easyops/convref-go/pkg/core/config"
	"github.com/easyops/convref-go/pkg/dataset"
	"github.com/easyops/convref-go/pkg/evaluation"
)

// evalOptions are the eval command flags; only flags set on the command line override the config
type evalOptions struct {
	datasetPath      string
	experiment       string
	resultStore      string
	maxSamples       int
	strict           bool
	llmOnly          bool
	gtSegments       bool
	gtRelevancy      bool
	summaryTrees     bool
	dialogueEntities bool
	noScore          bool
}

var evalOpts evalOptions

func init() {
	f := evalCmd.Flags()
	f.StringVar(&evalOpts.datasetPath, "dataset", "", "preprocessed dataset directory")
	f.StringVar(&evalOpts.experiment, "experiment", "", "experiment name; results go to <output_dir>/<experiment>")
	f.StringVar(&evalOpts.resultStore, "store", "", "prediction store: json or sqlite")
	f.IntVar(&evalOpts.maxSamples, "max-samples", 0, "maximum samples per split (0 for all)")
	f.BoolVar(&evalOpts.strict, "strict", false, "ask the model to confirm relevance of the excerpts")
	f.BoolVar(&evalOpts.llmOnly, "llm-only", false, "run the single-prompt baseline")
	f.BoolVar(&evalOpts.gtSegments, "gt-segments", false, "use ground-truth segments as evidence")
	f.BoolVar(&evalOpts.gtRelevancy, "gt-relevancy", false, "use ground-truth document relevance")
	f.BoolVar(&evalOpts.summaryTrees, "summary-trees", false, "add stored summary tree topics to the keyword prompt")
	f.BoolVar(&evalOpts.dialogueEntities, "dialogue-entities", false, "carry entities from earlier turns into keyword search")
	f.BoolVar(&evalOpts.noScore, "no-score", false, "only generate predictions")
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Predict and score every split of a preprocessed dataset",
	Long: `Answer every sample of the train and test splits, storing each
prediction as soon as it is made, then score the predictions against the
ground truth and write <split>eval.json. Stored predictions are reused, so a
failed or interrupted run resumes where it stopped.

Examples:
  # Evaluate the strict variant on QuAC
  convref eval --dataset data/QuAC --strict --experiment strict

  # Ablation with ground-truth relevance, first 50 samples only
  convref eval --dataset data/QuAC --gt-relevancy --max-samples 50`,
	RunE: runEval,
}

// apply overrides config values with the flags reported as changed
func (o evalOptions) apply(cfg *config.Config, changed func(string) bool) {
	if changed("dataset") {
		cfg.Evaluation.DatasetPath = o.datasetPath
	}
	if changed("experiment") {
		cfg.Evaluation.ExperimentName = o.experiment
	}
	if changed("store") {
		cfg.Evaluation.ResultStore = o.resultStore
	}
	if changed("max-samples") {
		cfg.Evaluation.MaxSamples = o.maxSamples
	}
	if changed("strict") {
		cfg.Pipeline.Strict = o.strict
	}
	if changed("llm-only") {
		cfg.Pipeline.LLMOnly = o.llmOnly
	}
	if changed("gt-segments") {
		cfg.Pipeline.UseGroundTruthSegments = o.gtSegments
	}
	if changed("gt-relevancy") {
		cfg.Pipeline.UseGroundTruthDocRelevancy = o.gtRelevancy
	}
	if changed("summary-trees") {
		cfg.Pipeline.UseSummaryTrees = o.summaryTrees
	}
	if changed("dialogue-entities") {
		cfg.Pipeline.UseDialogueEntities = o.dialogueEntities
	}
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	evalOpts.apply(a.cfg, cmd.Flags().Changed)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	ds, err := dataset.Load(a.cfg.Evaluation.DatasetPath)
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline(ctx, a.cfg.Pipeline)
	if err != nil {
		return err
	}

	store, err := evaluation.NewResultStore(a.cfg.Evaluation)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store)

	var scorer *evaluation.Scorer
	if !evalOpts.noScore {
		judge, err := a.newProvider(a.cfg.Judge)
		if err != nil {
			return err
		}
		scorer = evaluation.NewScorer(judge, evaluation.WithScorerLogger(a.logger))
	}

	outputDir := evaluation.OutputDir(a.cfg.Evaluation)
	a.logger.Info("starting evaluation",
		"dataset", ds.Name,
		"mode", pipeline.Config().Mode(),
		"output", outputDir,
	)
	runner := evaluation.NewRunner(pipeline, store, scorer, outputDir,
		evaluation.WithMaxSamples(a.cfg.Evaluation.MaxSamples),
		evaluation.WithRunnerLogger(a.logger),
		evaluation.WithRunnerTracer(a.tracer),
	)
	reports, err := runner.Run(ctx, ds)
	if err != nil {
		return err
	}
	return printReports(cmd.OutOrStdout(), reports)
}

// printReports writes one summary row per scored split
func printReports(out io.Writer, reports map[dataset.Split]*evaluation.Report) error {
	if len(reports) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPLIT\tRELEVANCE F1\tRETRIEVAL ACC\tANSWER ACC\tTIME (s)")
	for _, split := range dataset.Splits {
		r, ok := reports[split]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.1f%%\t%.1f%%\t%.3f (± %.3f)\n",
			split,
			r.Relevance.F1,
			r.Retrieval.Accuracy*100,
			r.Answer.Accuracy*100,
			r.Time.Average,
			r.Time.StandardDeviation,
		)
	}
	return w.Flush()
}
