package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/swdee/go-postura/backend"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print the input and output tensors of the pose model",
	RunE:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(_ *cobra.Command, _ []string) error {

	cfg, _, closer, err := setup()

	if err != nil {
		return err
	}

	defer closer.Close()

	eng, err := backend.OpenEngine(cfg.Model.Options())

	if err != nil {
		return err
	}

	defer eng.Close()

	return eng.Query(os.Stdout)
}
