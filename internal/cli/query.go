package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loftdb/loft/internal/query"
	"github.com/loftdb/loft/internal/ui"
)

var (
	queryParams string
	queryLimit  int64
	querySkip   int64
)

var queryCmd = &cobra.Command{
	Use:   "query <expression>",
	Short: "Run a JSON query expression",
	Long: `Run a JSON-encoded query expression against the store.

The expression is a nested JSON array, e.g.:

  loft query '["=", [".", "type"], "note"]'
  loft query '{"WHERE": ["MATCH", [".", "text"], "hello"], "ORDER BY": [[".", "name"]]}'

Parameters referenced with ["$", name] bind from --params.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		q, err := query.Compile(s, []byte(args[0]))
		if err != nil {
			return err
		}
		defer q.Close()

		opts := &query.Options{Skip: querySkip, Limit: queryLimit}
		if queryParams != "" {
			opts.ParamBindings = []byte(queryParams)
		}
		e, err := q.Run(opts)
		if err != nil {
			return err
		}
		defer e.Close()

		type row struct {
			Key        string `json:"key"`
			Sequence   int64  `json:"sequence"`
			BodyLength int64  `json:"body_length"`
			Matched    string `json:"matched,omitempty"`
		}
		var results []row
		for e.Next() {
			r := row{
				Key:        string(e.RecordID()),
				Sequence:   e.Sequence(),
				BodyLength: e.BodyLength(),
			}
			if e.HasFullText() {
				if text, err := e.MatchedText(); err == nil {
					r.Matched = text
				}
			}
			results = append(results, r)
		}
		if err := e.Err(); err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		tbl := ui.NewTable(3)
		for _, r := range results {
			tbl.AddRow(
				ui.Render(ui.Accent, r.Key),
				ui.Render(ui.Muted, fmt.Sprintf("@%d", r.Sequence)),
				ui.Render(ui.Muted, fmt.Sprintf("%d bytes", r.BodyLength)),
			)
		}
		fmt.Print(tbl.String())
		fmt.Println(ui.Render(ui.Muted, fmt.Sprintf("%d result(s)", len(results))))
		return nil
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <expression>",
	Short: "Show the SQL a query expression compiles to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		q, err := query.Compile(s, []byte(args[0]))
		if err != nil {
			return err
		}
		defer q.Close()

		fmt.Println(q.SQL())
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryParams, "params", "", "JSON dict of query parameter bindings")
	queryCmd.Flags().Int64Var(&queryLimit, "limit", -1, "maximum number of rows (-1 = unlimited)")
	queryCmd.Flags().Int64Var(&querySkip, "skip", 0, "number of leading rows to skip")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(compileCmd)
}
