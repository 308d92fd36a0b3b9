package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/knowledge-indexer/internal/app"
	"github.com/yungbote/knowledge-indexer/internal/clients/redis"
	knowledge "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
)

var indexFlags struct {
	knowledgeID uint64
	documentID  uint64
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index one knowledge document inline",
	Long: `Runs the indexing pipeline for a single document in this process,
without going through the job queue, and prints the result as JSON.`,
	RunE: runIndex,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print indexing status events as they are published",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := app.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		enc := json.NewEncoder(cmd.OutOrStdout())
		return a.Watch(ctx, func(ev redis.StatusEvent) {
			_ = enc.Encode(ev)
		})
	},
}

func init() {
	indexCmd.Flags().Uint64Var(&indexFlags.knowledgeID, "knowledge-id", 0, "knowledge id")
	indexCmd.Flags().Uint64Var(&indexFlags.documentID, "document-id", 0, "knowledge document id")
	_ = indexCmd.MarkFlagRequired("knowledge-id")
	_ = indexCmd.MarkFlagRequired("document-id")
	rootCmd.AddCommand(indexCmd, watchCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexFlags.knowledgeID == 0 || indexFlags.documentID == 0 {
		return errors.New("--knowledge-id and --document-id must be positive")
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.IndexDocument(ctx, indexFlags.knowledgeID, indexFlags.documentID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	if res.Status == knowledge.IndexStatusError {
		return fmt.Errorf("indexing failed: %s", res.Error)
	}
	return nil
}
