package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/beargallbladder/domain-runner-sub003/internal/catalog"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage versioned prompt templates",
	Long: "Commands for registering, updating, and inspecting the prompts the run " +
		"command fans out. Text changes bump the minor version; history is append-only.",
}

// -- catalog add --

var (
	catalogAddID      string
	catalogAddText    string
	catalogAddTask    string
	catalogAddTags    []string
	catalogAddCreator string
)

var catalogAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new prompt",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		added, err := cat.Add(model.PromptVersion{
			PromptID:   catalogAddID,
			Text:       catalogAddText,
			Task:       catalogAddTask,
			SafetyTags: catalogAddTags,
			Creator:    catalogAddCreator,
		})
		if err != nil {
			return err
		}
		if err := cat.SaveFile(cfg.Catalog.Path); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(added)
	},
}

// -- catalog update --

var (
	catalogUpdateID   string
	catalogUpdateText string
)

var catalogUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace a prompt's text, bumping its minor version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		next, err := cat.Update(catalogUpdateID, catalogUpdateText)
		if err != nil {
			return err
		}
		if err := cat.SaveFile(cfg.Catalog.Path); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(next)
	},
}

// -- catalog show --

var catalogShowHistory bool

var catalogShowCmd = &cobra.Command{
	Use:   "show <prompt-id>",
	Short: "Show the latest version of a prompt, or its full history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if catalogShowHistory {
			history := cat.GetHistory(args[0])
			if len(history) == 0 {
				return catalog.ErrPromptNotFound
			}
			return enc.Encode(history)
		}

		p, ok := cat.Get(args[0])
		if !ok {
			return catalog.ErrPromptNotFound
		}
		return enc.Encode(p)
	},
}

// -- catalog list --

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered prompts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("catalog"); err != nil {
			return err
		}

		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		if cat.Len() == 0 {
			fmt.Fprintln(os.Stderr, "No prompts registered.")
			return nil
		}

		formatPromptList(os.Stdout, cat)
		return nil
	},
}

func init() {
	catalogAddCmd.Flags().StringVar(&catalogAddID, "id", "", "prompt id (required)")
	catalogAddCmd.Flags().StringVar(&catalogAddText, "text", "", "prompt template text (required)")
	catalogAddCmd.Flags().StringVar(&catalogAddTask, "task", "", "task label")
	catalogAddCmd.Flags().StringSliceVar(&catalogAddTags, "tags", nil, "safety tags (required)")
	catalogAddCmd.Flags().StringVar(&catalogAddCreator, "creator", "", "author")
	_ = catalogAddCmd.MarkFlagRequired("id")
	_ = catalogAddCmd.MarkFlagRequired("text")
	_ = catalogAddCmd.MarkFlagRequired("tags")

	catalogUpdateCmd.Flags().StringVar(&catalogUpdateID, "id", "", "prompt id (required)")
	catalogUpdateCmd.Flags().StringVar(&catalogUpdateText, "text", "", "new template text (required)")
	_ = catalogUpdateCmd.MarkFlagRequired("id")
	_ = catalogUpdateCmd.MarkFlagRequired("text")

	catalogShowCmd.Flags().BoolVar(&catalogShowHistory, "history", false, "show every version, oldest first")

	catalogCmd.AddCommand(catalogAddCmd)
	catalogCmd.AddCommand(catalogUpdateCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}

// formatPromptList writes a tabular prompt listing to w.
func formatPromptList(out io.Writer, cat *catalog.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVERSION\tTASK\tTAGS\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t----\t-------")

	for _, id := range cat.IDs() {
		p, ok := cat.Get(id)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.PromptID,
			p.Version,
			p.Task,
			strings.Join(p.SafetyTags, ","),
			p.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
