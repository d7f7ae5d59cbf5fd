package cmd

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/builder"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
	"github.com/ragpipe-dev/ragpipe/internal/output"
)

func newQueryCmd() *cobra.Command {
	var topK int
	var filterFlags []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the index",
		Long: `Embed the query text and return the most similar chunks. Metadata
filters restrict results: --filter field=a,b matches chunks whose field
is a OR b; repeating --filter for different fields ANDs them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilters(filterFlags)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := builder.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			results, err := p.Query(cmd.Context(), strings.Join(args, " "), topK, filters)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			w := output.New(os.Stdout)
			if len(results) == 0 {
				w.Infof("no results")
				return nil
			}
			for i, r := range results {
				w.Result(i+1, float64(r.Score), r.ChunkID, r.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (0 uses the configured default)")
	cmd.Flags().StringArrayVarP(&filterFlags, "filter", "f", nil, "Metadata filter field=value[,value...] (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// parseFilters turns --filter flags into the query filter map. Values
// parse as bool or number when they look like one, so year=2024
// matches a numeric metadata field.
func parseFilters(flags []string) (map[string][]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	filters := make(map[string][]any, len(flags))
	for _, flag := range flags {
		field, raw, ok := strings.Cut(flag, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" || raw == "" {
			return nil, errors.ValidationError(
				"filter must look like field=value[,value...]: "+flag, nil)
		}
		for _, part := range strings.Split(raw, ",") {
			filters[field] = append(filters[field], parseFilterValue(part))
		}
	}
	return filters, nil
}

func parseFilterValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
