package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"chatlog-cli/internal/activity"
	"chatlog-cli/internal/history"
	"chatlog-cli/internal/logger"

	"github.com/spf13/cobra"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		output string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "convert [source.jsonl]",
		Short: "Convert persisted history messages to transcript activities",
		Long: `Reads history messages (JSON lines) and writes the renderable activities
as a JSON array, ordered by sequence id. Suppressed messages are dropped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Source
			if len(args) == 1 {
				path = args[0]
			}
			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runConvert(cmd, path, out, pretty)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	return cmd
}

func runConvert(cmd *cobra.Command, path string, out io.Writer, pretty bool) error {
	src, err := history.NewFileSource(path)
	if err != nil {
		return err
	}
	msgs, err := src.Load(cmd.Context())
	if err != nil {
		return err
	}
	acts := activity.ConvertBatch(msgs)
	if acts == nil {
		acts = []activity.Activity{}
	}
	logger.Named("convert").WithFields(logger.Fields{
		"source":   path,
		"received": len(msgs),
		"rendered": len(acts),
	}).Info("converted history")

	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(acts)
}
