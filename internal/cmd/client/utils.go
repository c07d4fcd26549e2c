package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"unicode/utf8"

	transports "github.com/gojue/ecaptureQ/internal/cmd/client/transports"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// grpcAddrFromEnv returns the gRPC server address from ECAPTUREQ_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("ECAPTUREQ_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialGRPCContext connects to the gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// getTransport picks gRPC or HTTP from the --transport flag, then
// ECAPTUREQ_TRANSPORT. gRPC is the default.
func getTransport(cmd *cobra.Command, baseURL BaseURLFunc) transports.PacketsTransport {
	kind := os.Getenv("ECAPTUREQ_TRANSPORT")
	if f := cmd.Flag("transport"); f != nil && f.Changed {
		kind = f.Value.String()
	}
	if kind == "http" {
		return transports.NewHTTPTransport(baseURL(), nil)
	}
	return transports.NewGrpcTransport(dialGRPCContext)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodedRecord renders a row for the terminal: the payload appears as one
// of payload_json, payload_text or payload_b64.
func decodedRecord(rec packet.Record) map[string]any {
	payload := rec.Payload()
	rec.PayloadText, rec.PayloadBytes = "", nil
	b, _ := json.Marshal(rec)
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	if len(payload) == 0 {
		return out
	}
	// Try JSON first if it looks like JSON
	if payload[0] == '{' || payload[0] == '[' {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if !rec.IsBinary && utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
