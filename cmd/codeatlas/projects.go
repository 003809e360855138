package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage indexed projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		projects, err := s.ListProjects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("no projects indexed")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s\t%s\t(indexed %s)\n", p.Name, p.RootPath, p.IndexedAt)
		}
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete one project's nodes and relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := newIngestor(s, "", 0).DeleteProject(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted project %s\n", args[0])
		return nil
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd, projectsDeleteCmd)
	rootCmd.AddCommand(projectsCmd)
}
