package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fractal-lba/scorelens/internal/api"
	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/predictor"
	"github.com/fractal-lba/scorelens/internal/registry"
	"github.com/fractal-lba/scorelens/internal/schema"
)

// versionLoader serves a pinned version instead of the active one.
type versionLoader struct {
	reg     *registry.Registry
	version string
}

func (l versionLoader) LoadActive(ctx context.Context) (*bundle.Bundle, error) {
	if l.version == "" {
		return l.reg.LoadActive(ctx)
	}
	return l.reg.Load(ctx, l.version)
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().String("record", "", "user record as a JSON object")
	cmd.Flags().String("record-file", "", "file holding the JSON record, or - for stdin")
	cmd.Flags().String("model-version", "", "score with this version instead of the active one")
	cmd.MarkFlagsMutuallyExclusive("record", "record-file")
}

func readRecord(cmd *cobra.Command) (schema.Record, error) {
	inline, _ := cmd.Flags().GetString("record")
	file, _ := cmd.Flags().GetString("record-file")

	var r io.Reader
	switch {
	case inline != "":
		r = strings.NewReader(inline)
	case file == "-":
		r = cmd.InOrStdin()
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open record file: %w", err)
		}
		defer f.Close()
		r = f
	default:
		return nil, errors.New("one of --record or --record-file is required")
	}

	var rec schema.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// withPredictor loads the requested bundle into a fresh predictor.
func withPredictor(cmd *cobra.Command, fn func(*predictor.Predictor) error) error {
	pinned, _ := cmd.Flags().GetString("model-version")
	return withRegistry(func(reg *registry.Registry) error {
		p := predictor.New(versionLoader{reg: reg, version: pinned})
		if err := p.Init(cmd.Context()); err != nil {
			return err
		}
		return fn(p)
	})
}

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score one user record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := readRecord(cmd)
			if err != nil {
				return err
			}
			return withPredictor(cmd, func(p *predictor.Predictor) error {
				items, err := p.PredictBatch(cmd.Context(), []schema.Record{rec})
				if err != nil {
					return err
				}
				if items[0].Error != "" {
					return fmt.Errorf("prediction error: %s", items[0].Error)
				}
				return writeOutput(cmd.OutOrStdout(), api.PredictResponse{
					Score:    items[0].Score,
					Category: items[0].Category,
				})
			})
		},
	}
	addRecordFlags(cmd)
	return cmd
}

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Score one user record and explain the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := readRecord(cmd)
			if err != nil {
				return err
			}
			textOnly, _ := cmd.Flags().GetBool("text")
			return withPredictor(cmd, func(p *predictor.Predictor) error {
				res, err := p.PredictWithExplanation(cmd.Context(), rec)
				if err != nil {
					return err
				}
				if textOnly {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), res.Narrative)
					return err
				}
				return writeOutput(cmd.OutOrStdout(), api.AnalyzeResponse{
					CreditScore: res.Score,
					Category:    res.Category,
					Explanation: res,
				})
			})
		},
	}
	addRecordFlags(cmd)
	cmd.Flags().Bool("text", false, "print only the narrative")
	return cmd
}
