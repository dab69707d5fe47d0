package cli

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soyeahso/parley/internal/chatapi"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var (
		format  string
		out     string
		urlOnly bool
	)

	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Download a chat report as pdf or xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAPI(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			if urlOnly {
				u, err := a.api.ReportURL(id, format)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			}
			if !a.auth.IsAuthenticated() {
				return fmt.Errorf("not signed in; run: parley login")
			}

			dest := cmp.Or(out, filepath.Join(paths.Reports, chatapi.ReportFilename(id, format)))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			n, err := a.api.DownloadReport(cmd.Context(), id, format, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(dest)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", dest, n)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", chatapi.FormatPDF, "report format (pdf or xlsx)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: reports dir)")
	cmd.Flags().BoolVar(&urlOnly, "url", false, "print the download URL instead of downloading")
	return cmd
}
