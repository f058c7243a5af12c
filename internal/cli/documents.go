package cli

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/loftdb/loft/internal/sqlutil"
	"github.com/loftdb/loft/internal/ui"
)

var putKey string

var putCmd = &cobra.Command{
	Use:   "put [body]",
	Short: "Store a JSON document",
	Long: `Store a JSON document body under a key. Without --key a record ID
is generated. The body is read from the argument, or from stdin when
omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		if len(args) == 1 {
			body = []byte(args[0])
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read body from stdin: %w", err)
			}
			body = data
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.Put(putKey, nil, body)
		if err != nil {
			return err
		}
		fmt.Println(ui.Successf("stored %s @%d", ui.Render(ui.Accent, rec.Key), rec.Sequence))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a document body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(rec.Body))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Delete(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Successf("deleted %s", args[0]))
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		rows, err := s.DB().Query(fmt.Sprintf(
			"SELECT key, sequence, length(body) FROM %s ORDER BY sequence", s.TableName()))
		if err != nil {
			return err
		}
		type docRow struct {
			key  string
			seq  int64
			size int64
		}
		docs, err := sqlutil.ScanRows(rows, func(rows *sql.Rows) (docRow, error) {
			var d docRow
			err := rows.Scan(&d.key, &d.seq, &d.size)
			return d, err
		})
		if err != nil {
			return err
		}

		tbl := ui.NewTable(3)
		for _, d := range docs {
			tbl.AddRow(
				ui.Render(ui.Accent, d.key),
				ui.Render(ui.Muted, fmt.Sprintf("@%d", d.seq)),
				ui.Render(ui.Muted, fmt.Sprintf("%d bytes", d.size)),
			)
		}
		fmt.Print(tbl.String())
		return nil
	},
}

func init() {
	putCmd.Flags().StringVar(&putKey, "key", "", "document key (generated when empty)")
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(lsCmd)
}
