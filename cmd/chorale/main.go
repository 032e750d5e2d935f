// Command chorale builds and inspects deployable conformer inference
// artifacts from a training configuration.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfluke/chorale/conformer"
	"github.com/openfluke/chorale/export"
)

func main() {
	root := &cobra.Command{
		Use:           "chorale",
		Short:         "Conformer ASR model tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(exportCmd(), infoCmd())
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func exportCmd() *cobra.Command {
	var configPath, outPath string
	var online bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build an inference artifact from a model configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conformer.LoadConfig(configPath)
			if err != nil {
				return err
			}
			var model *conformer.Model
			if online {
				model, err = conformer.NewOnlineModel(cfg)
			} else {
				model, err = conformer.NewOfflineModel(cfg)
			}
			if err != nil {
				return err
			}
			if err := export.Save(model, outPath); err != nil {
				return err
			}
			slog.Info("artifact written", "path", outPath, "fingerprint", model.Fingerprint())
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "model configuration file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "model.chorale", "artifact output path")
	cmd.Flags().BoolVar(&online, "online", false, "build the streaming (causal, chunked) preset")
	return cmd
}

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <artifact>",
		Short: "Print artifact metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var art export.Artifact
			if err := json.Unmarshal(raw, &art); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			fmt.Printf("version:     %s\n", art.Version)
			fmt.Printf("fingerprint: %s\n", art.Fingerprint)
			fmt.Printf("tensors:     %d\n", len(art.Tensors))
			if art.Config != nil {
				fmt.Printf("input_dim:   %d\n", art.Config.InputDim)
				fmt.Printf("vocab_size:  %d\n", art.Config.VocabSize)
				fmt.Printf("causal:      %t\n", art.Config.Causal)
			}
			return nil
		},
	}
	return cmd
}
