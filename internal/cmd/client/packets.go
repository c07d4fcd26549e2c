package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	transports "github.com/gojue/ecaptureQ/internal/cmd/client/transports"
	"github.com/gojue/ecaptureQ/internal/sink"
	"github.com/spf13/cobra"
)

var errLimitReached = errors.New("limit reached")

func optionalCursor(cmd *cobra.Command) (*uint64, error) {
	if !cmd.Flags().Changed("cursor") {
		return nil, nil
	}
	c, err := cmd.Flags().GetUint64("cursor")
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// NewQueryCommand constructs `query`: one incremental query over the table.
func NewQueryCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [predicate | SELECT ...]",
		Short: "Run an incremental query (summary columns only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor, err := optionalCursor(cmd)
			if err != nil {
				return err
			}
			res, err := getTransport(cmd, baseURL).Query(cmd.Context(), strings.Join(args, " "), cursor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Uint64("cursor", 0, "Only rows with index greater than this")
	return cmd
}

// NewGetCommand constructs `get <index>`: one full row with its payload.
func NewGetCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <index>",
		Short: "Fetch one packet including its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			rec, err := getTransport(cmd, baseURL).Get(cmd.Context(), index)
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				_, err := cmd.OutOrStdout().Write(rec.Payload())
				return err
			}
			return printJSON(cmd.OutOrStdout(), decodedRecord(rec))
		},
	}
	cmd.Flags().Bool("raw", false, "Write the raw payload bytes instead of JSON")
	return cmd
}

// NewTailCommand constructs `tail`: follow pushed rows as JSON lines.
func NewTailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow pushed rows (session feed, or a private feed with --filter)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := transports.SubscribeRequest{}
			req.Topic, _ = cmd.Flags().GetString("topic")
			if cmd.Flags().Changed("filter") {
				f, _ := cmd.Flags().GetString("filter")
				req.Filter = &f
			}
			cursor, err := optionalCursor(cmd)
			if err != nil {
				return err
			}
			req.Cursor = cursor
			limit, _ := cmd.Flags().GetInt("limit")

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			err = getTransport(cmd, baseURL).Subscribe(cmd.Context(), req, func(msg sink.Message) error {
				for _, row := range msg.Rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
					seen++
					if limit > 0 && seen >= limit {
						return errLimitReached
					}
				}
				return nil
			})
			if errors.Is(err, errLimitReached) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("filter", "", "Predicate or SELECT for a private feed")
	cmd.Flags().Uint64("cursor", 0, "With --filter, start after this index")
	cmd.Flags().String("topic", "", "Only batches pushed under this topic")
	cmd.Flags().Int("limit", 0, "Stop after N rows (0 = infinite)")
	return cmd
}
