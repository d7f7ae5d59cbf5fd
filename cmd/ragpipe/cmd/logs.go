package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var file string
	var tail int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent log lines",
		Long:  `Print the last lines of the ragpipe log file (~/.ragpipe/logs/).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}
			lines, err := tailLines(path, tail)
			if err != nil {
				return err
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Log file to read (default: the standard location)")
	cmd.Flags().IntVarP(&tail, "tail", "n", 50, "Number of lines to print")
	return cmd
}

func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
