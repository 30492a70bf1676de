package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/dataset"
)

var (
	// answer command flags
	ansDocsPath    string
	ansDatasetPath string
	ansLabelPath   string
	ansStrict      bool
	ansLLMOnly     bool
)

func init() {
	answerCmd.Flags().StringVar(&ansDocsPath, "docs", "", "JSON file mapping document IDs to text")
	answerCmd.Flags().StringVar(&ansDatasetPath, "dataset", "", "preprocessed dataset directory to take documents from")
	answerCmd.Flags().StringVar(&ansLabelPath, "label", "", "ground-truth label JSON for ablation runs")
	answerCmd.Flags().BoolVar(&ansStrict, "strict", false, "ask the model to confirm relevance of the excerpts")
	answerCmd.Flags().BoolVar(&ansLLMOnly, "llm-only", false, "run the single-prompt baseline")
	answerCmd.MarkFlagsMutuallyExclusive("docs", "dataset")
}

var answerCmd = &cobra.Command{
	Use:   "answer [sample.json]",
	Short: "Answer one sample and print the predicted label",
	Long: `Answer a single sample ({"document_ids": [...], "conversation": [...]})
read from a file or stdin and print the predicted label as JSON.

Examples:
  # Answer against a dataset's documents
  convref answer --dataset data/CoQA sample.json

  # Answer from stdin with an explicit document file
  cat sample.json | convref answer --docs docs.json -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnswer,
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if cmd.Flags().Changed("strict") {
		a.cfg.Pipeline.Strict = ansStrict
	}
	if cmd.Flags().Changed("llm-only") {
		a.cfg.Pipeline.LLMOnly = ansLLMOnly
	}

	var sample convref.Sample
	if err := decodeJSON(cmd.InOrStdin(), args, &sample); err != nil {
		return fmt.Errorf("failed to read sample: %w", err)
	}
	docs, err := loadDocs(ansDocsPath, ansDatasetPath)
	if err != nil {
		return err
	}

	var groundTruth *convref.Label
	if ansLabelPath != "" {
		groundTruth = &convref.Label{}
		if err := decodeJSON(nil, []string{ansLabelPath}, groundTruth); err != nil {
			return fmt.Errorf("failed to read label: %w", err)
		}
	}

	pipeline, err := a.newPipeline(ctx, a.cfg.Pipeline)
	if err != nil {
		return err
	}
	label, err := pipeline.Answer(ctx, sample, docs, groundTruth)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "    ")
	return enc.Encode(label)
}

// decodeJSON reads JSON from the file named by args[0], or from stdin when it is absent or "-"
func decodeJSON(stdin io.Reader, args []string, v any) error {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		if stdin == nil {
			return fmt.Errorf("no input")
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// loadDocs reads documents from a JSON file or from a preprocessed dataset
func loadDocs(docsPath, datasetPath string) (map[string]string, error) {
	switch {
	case docsPath != "":
		var docs map[string]string
		if err := decodeJSON(nil, []string{docsPath}, &docs); err != nil {
			return nil, fmt.Errorf("failed to read documents: %w", err)
		}
		return docs, nil
	case datasetPath != "":
		ds, err := dataset.Load(datasetPath)
		if err != nil {
			return nil, err
		}
		return ds.Docs, nil
	default:
		return nil, fmt.Errorf("one of --docs or --dataset is required")
	}
}
