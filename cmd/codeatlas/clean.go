package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanYes bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every node and relationship in the graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cleanYes {
			return fmt.Errorf("refusing to wipe the graph without --yes")
		}
		s, err := openStore(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := newIngestor(s, "", 0).CleanDatabase(); err != nil {
			return err
		}
		fmt.Println("graph cleaned")
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanYes, "yes", false, "confirm the wipe")
	rootCmd.AddCommand(cleanCmd)
}
