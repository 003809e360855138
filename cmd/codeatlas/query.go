package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queryParams []string

var queryCmd = &cobra.Command{
	Use:   "query <cypher>",
	Short: "Run a Cypher query against the graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "query parameter as name=value (repeatable)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	s, err := openStore(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	params := map[string]any{}
	for _, p := range queryParams {
		name, value, ok := cutParam(p)
		if !ok {
			return fmt.Errorf("bad --param %q, want name=value", p)
		}
		params[name] = value
	}

	ing := newIngestor(s, "", 0)
	records, err := ing.FetchAll(args[0], params)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func cutParam(p string) (name, value string, ok bool) {
	for i := 0; i < len(p); i++ {
		if p[i] == '=' {
			return p[:i], p[i+1:], i > 0
		}
	}
	return "", "", false
}
