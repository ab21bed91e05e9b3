package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
	"github.com/JakeFAU/mostaql-scraper/internal/sink/csvfile"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <csv>",
		Short: "Summarise a CSV written by run",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspectCmd,
	}
	cmd.Flags().Int("head", 0, "also print the name and link of the first N rows")
	cmd.Flags().Bool("markdown", false, "render the summary as Markdown tables")
	return cmd
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	records, err := csvfile.ReadRecords(args[0])
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}
	head, err := cmd.Flags().GetInt("head")
	if err != nil {
		return err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	head = min(max(head, 0), len(records))
	filled := fillCounts(records)
	out := cmd.OutOrStdout()
	if asMarkdown {
		return writeInspectMarkdown(out, args[0], records, filled, head)
	}

	fmt.Fprintf(out, "Rows: %d\n", len(records))
	fmt.Fprintf(out, "Columns: %s\n", strings.Join(scraper.Columns, ", "))
	for i, col := range scraper.Columns {
		fmt.Fprintf(out, "  %-16s %d/%d\n", col, filled[i], len(records))
	}
	for i := 0; i < head; i++ {
		fmt.Fprintf(out, "%d. %s <%s>\n", i+1, records[i].ProjectName, records[i].Link)
	}
	return nil
}

// fillCounts returns, per column, how many records have a non-empty value.
func fillCounts(records []scraper.ProjectRecord) []int {
	filled := make([]int, len(scraper.Columns))
	for _, rec := range records {
		for i, v := range rec.Values() {
			if v != "" {
				filled[i]++
			}
		}
	}
	return filled
}

func writeInspectMarkdown(w io.Writer, path string, records []scraper.ProjectRecord, filled []int, head int) error {
	md := markdown.NewMarkdown(w)
	md.H1("Scrape output")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"File", "`" + path + "`"},
			{"Rows", strconv.Itoa(len(records))},
		},
	})
	md.PlainText("")

	md.H2("Column coverage")
	md.PlainText("")
	rows := make([][]string, 0, len(scraper.Columns))
	for i, col := range scraper.Columns {
		rows = append(rows, []string{col, fmt.Sprintf("%d/%d", filled[i], len(records))})
	}
	md.Table(markdown.TableSet{Header: []string{"Column", "Filled"}, Rows: rows})

	if head > 0 {
		md.PlainText("")
		md.H2("First projects")
		md.PlainText("")
		rows = make([][]string, 0, head)
		for i := 0; i < head; i++ {
			rows = append(rows, []string{strconv.Itoa(i + 1), escapeCell(records[i].ProjectName), records[i].Link})
		}
		md.Table(markdown.TableSet{Header: []string{"#", "Project", "Link"}, Rows: rows})
	}
	return md.Build()
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\r", " ", "\n", " ").Replace(s)
}
