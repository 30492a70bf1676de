package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easyops/convref-go/pkg/dataset"
	"github.com/easyops/convref-go/pkg/summarytree"
)

var (
	// build-trees command flags
	btDatasetPath string
	btMaxNodes    int
	btPrint       string
)

func init() {
	buildTreesCmd.Flags().StringVar(&btDatasetPath, "dataset", "", "preprocessed dataset directory (defaults to evaluation.dataset_path)")
	buildTreesCmd.Flags().IntVar(&btMaxNodes, "max-nodes", 0, "maximum children per tree node (defaults to summary_tree.max_nodes_per_level)")
	buildTreesCmd.Flags().StringVar(&btPrint, "print", "", "print the tree of this document ID after building")
}

var buildTreesCmd = &cobra.Command{
	Use:   "build-trees",
	Short: "Build and persist summary trees for every document of a dataset",
	Long: `Build a hierarchical keyword summary tree for every document of a
preprocessed dataset and persist it to the configured store (JSON file or
Neo4j). Documents that already have a tree are skipped, so an interrupted run
can simply be restarted.

Examples:
  # Build trees for CoQA into the configured store
  convref build-trees --config convref.yaml --dataset data/CoQA

  # Build and print one document's tree
  convref build-trees --dataset data/CoQA --print doc-17`,
	RunE: runBuildTrees,
}

func runBuildTrees(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	dir := btDatasetPath
	if dir == "" {
		dir = a.cfg.Evaluation.DatasetPath
	}
	ds, err := dataset.Load(dir)
	if err != nil {
		return err
	}

	encoder, err := a.newEncoder()
	if err != nil {
		return err
	}
	store, err := a.newTreeStore(ctx)
	if err != nil {
		return err
	}

	maxNodes := a.cfg.SummaryTree.MaxNodesPerLevel
	if btMaxNodes > 0 {
		maxNodes = btMaxNodes
	}
	builder := summarytree.NewBuilder(a.provider, encoder,
		summarytree.WithMaxNodesPerLevel(maxNodes),
		summarytree.WithSeed(a.cfg.SummaryTree.Seed),
		summarytree.WithLogger(a.logger),
		summarytree.WithPipelineTracer(a.tracer),
	)

	forest, err := summarytree.BuildAndSave(ctx, ds.Docs, builder, store)
	if err != nil {
		return fmt.Errorf("building summary trees: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d summary trees for %d documents of %s\n", len(forest), len(ds.Docs), ds.Name)

	if btPrint != "" {
		tree, ok := forest.Get(btPrint)
		if !ok {
			return fmt.Errorf("no summary tree for document %q", btPrint)
		}
		fmt.Fprint(cmd.OutOrStdout(), tree.Render())
	}
	return nil
}
