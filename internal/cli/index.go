package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loftdb/loft/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage full-text indexes",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create <property-path>",
	Short: "Create a full-text index on a document property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.CreateFullTextIndex(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Successf("indexed %s", ui.Render(ui.Accent, args[0])))
		return nil
	},
}

var indexDropCmd = &cobra.Command{
	Use:   "drop <property-path>",
	Short: "Drop a full-text index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DropFullTextIndex(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Successf("dropped index on %s", args[0]))
		return nil
	},
}

var indexLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List full-text indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		paths, err := s.FullTextIndexes()
		if err != nil {
			return err
		}
		for _, path := range paths {
			fmt.Println(ui.Render(ui.Accent, path))
		}
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexCreateCmd)
	indexCmd.AddCommand(indexDropCmd)
	indexCmd.AddCommand(indexLsCmd)
	rootCmd.AddCommand(indexCmd)
}
