package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

const defaultHandoffFile = "numeros_tombamento.xlsx"

func newExtractCommand(opts *Options) *cobra.Command {
	var (
		out      string
		jsonDump bool
	)

	cmd := &cobra.Command{
		Use:   "extract <pdf or directory>...",
		Short: "Extract asset numbers from PDF documents into a spreadsheet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectPDFs(args)
			if err != nil {
				return err
			}

			deps, err := opts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.close()

			result := deps.Extractor.Extract(cmd.Context(), paths)
			if jsonDump {
				enc := json.NewEncoder(opts.Out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printDocumentReports(opts.Out, result)
			}
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if len(result.Identifiers) == 0 {
				return fmt.Errorf("no asset numbers found in %d document(s)", len(paths))
			}

			if err := deps.Tables.Write(cmd.Context(), out, result.Identifiers); err != nil {
				return err
			}
			fmt.Fprintf(opts.Err, "%d asset number(s) written to %s\n", len(result.Identifiers), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", defaultHandoffFile, "output spreadsheet (.xlsx or .csv)")
	cmd.Flags().BoolVar(&jsonDump, "json", false, "print the extraction result as JSON")
	return cmd
}

// collectPDFs expands directories into the PDF files they contain. Files
// named explicitly are kept even without a .pdf extension.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				continue
			}
			found = append(found, filepath.Join(arg, e.Name()))
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no PDF documents found", domain.ErrInvalidInput)
	}
	return paths, nil
}

func printDocumentReports(w io.Writer, result domain.ExtractionResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tMETHOD\tPAGES\tFOUND\tNOTES")
	for _, doc := range result.Documents {
		notes := doc.Error
		if notes == "" && len(doc.Warnings) > 0 {
			notes = fmt.Sprintf("%d warning(s): %s", len(doc.Warnings), doc.Warnings[0])
		}
		method := string(doc.Method)
		if method == "" {
			method = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", filepath.Base(doc.Path), method, doc.Pages, doc.Found, notes)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d unique asset number(s), %d document(s) failed\n", len(result.Identifiers), len(result.Failed()))
}
