package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	transports "github.com/gojue/ecaptureQ/internal/cmd/client/transports"
	"github.com/gojue/ecaptureQ/internal/diaglog"
	"github.com/spf13/cobra"
)

type diagPage struct {
	Entries []diaglog.Entry `json:"entries"`
	Next    uint64          `json:"next"`
}

func fetchDiagnostics(ctx context.Context, t *transports.HTTPTransport, v url.Values) (diagPage, error) {
	var page diagPage
	resp, err := t.Do(ctx, http.MethodGet, "/v1/diagnostics?"+v.Encode(), nil)
	if err != nil {
		return page, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&page)
	return page, err
}

// NewDiagnosticsCommand constructs `diagnostics`: heartbeats and capture
// process logs as JSON lines, optionally following new entries.
func NewDiagnosticsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "diagnostics",
		Aliases: []string{"diag"},
		Short:   "List heartbeats and capture process logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")
			follow, _ := cmd.Flags().GetBool("follow")

			t := transports.NewHTTPTransport(baseURL(), nil)
			enc := json.NewEncoder(cmd.OutOrStdout())
			v := url.Values{}
			v.Set("filter", filter)
			v.Set("limit", strconv.Itoa(limit))
			if reverse && !follow {
				v.Set("reverse", "true")
			}
			var last uint64
			for {
				page, err := fetchDiagnostics(cmd.Context(), t, v)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, e := range page.Entries {
					if err := enc.Encode(e); err != nil {
						return err
					}
					last = e.Seq
				}
				if !follow {
					return nil
				}
				if page.Next != 0 {
					v.Set("start", strconv.FormatUint(page.Next, 10))
				} else if last != 0 {
					v.Set("start", strconv.FormatUint(last+1, 10))
				}
				v.Set("wait_ms", "10000")
			}
		},
	}
	cmd.Flags().String("filter", "", `CEL filter, e.g. kind == "process_log" && level == "error"`)
	cmd.Flags().Int("limit", 100, "Entries per page")
	cmd.Flags().Bool("reverse", false, "Newest first (ignored with --follow)")
	cmd.Flags().BoolP("follow", "f", false, "Keep waiting for new entries")
	return cmd
}
