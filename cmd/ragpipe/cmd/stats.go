package cmd

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/builder"
	"github.com/ragpipe-dev/ragpipe/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := builder.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			stats, err := p.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			w := output.New(os.Stdout)
			w.Header("Index statistics")
			w.KV([][2]string{
				{"Documents", strconv.Itoa(stats.DocumentCount)},
				{"Chunks", strconv.Itoa(stats.ChunkCount)},
				{"Backend", stats.BackendName},
				{"Embedder", stats.EmbedderModel},
				{"Dimensions", strconv.Itoa(stats.EmbeddingDimension)},
				{"Data dir", cfg.Store.DataDir},
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
