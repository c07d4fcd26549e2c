package client

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	transports "github.com/gojue/ecaptureQ/internal/cmd/client/transports"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

// NewExportCommand constructs `export`: full rows as NDJSON over HTTP.
func NewExportCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [predicate | SELECT ...]",
		Short: "Export matching packets with payloads as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := url.Values{}
			if q := strings.Join(args, " "); q != "" {
				v.Set("q", q)
			}
			if cmd.Flags().Changed("cursor") {
				c, _ := cmd.Flags().GetUint64("cursor")
				v.Set("cursor", strconv.FormatUint(c, 10))
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
				v.Set("limit", strconv.Itoa(limit))
			}
			compress, _ := cmd.Flags().GetBool("compress")
			if compress {
				v.Set("compress", "zstd")
			}
			path := "/v1/export"
			if len(v) > 0 {
				path += "?" + v.Encode()
			}
			resp, err := transports.NewHTTPTransport(baseURL(), nil).Do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			out := cmd.OutOrStdout()
			outPath, _ := cmd.Flags().GetString("out")
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			var body io.Reader = resp.Body
			// keep the compressed stream only when writing a .zst file
			if resp.Header.Get("Content-Encoding") == "zstd" && !strings.HasSuffix(outPath, ".zst") {
				dec, err := zstd.NewReader(resp.Body)
				if err != nil {
					return err
				}
				defer dec.Close()
				body = dec
			}
			_, err = io.Copy(out, body)
			return err
		},
	}
	cmd.Flags().Uint64("cursor", 0, "Only rows with index greater than this")
	cmd.Flags().Int("limit", 0, "Maximum rows (0 = all)")
	cmd.Flags().String("out", "", "Output file (default stdout); a .zst name keeps the compressed stream")
	cmd.Flags().Bool("compress", false, "Transfer with zstd compression")
	return cmd
}
