package config

import (
	"os"
	"strconv"
)

// FromEnv overlays ECAPTUREQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("ECAPTUREQ_WS_URL", &cfg.WSURL)
	str("ECAPTUREQ_CAPTURE_BIN", &cfg.CaptureBin)
	str("ECAPTUREQ_CAPTURE_ARGS", &cfg.CaptureArgs)
	str("ECAPTUREQ_FILTER", &cfg.Filter)
	str("ECAPTUREQ_PUSH_TOPIC", &cfg.PushTopic)
	str("ECAPTUREQ_HTTP_ADDR", &cfg.HTTPAddr)
	str("ECAPTUREQ_GRPC_ADDR", &cfg.GRPCAddr)
	num("ECAPTUREQ_BATCH_SIZE", &cfg.Pipeline.BatchSize)
	num("ECAPTUREQ_FLUSH_INTERVAL_MS", &cfg.Pipeline.FlushIntervalMs)
	num("ECAPTUREQ_PUSH_INTERVAL_MS", &cfg.Pipeline.PushIntervalMs)
	num("ECAPTUREQ_RECONNECT_BACKOFF_MS", &cfg.Pipeline.ReconnectBackoffMs)
	num("ECAPTUREQ_INBOX_SIZE", &cfg.Pipeline.InboxSize)
	num("ECAPTUREQ_CAPTURE_GRACE_MS", &cfg.Pipeline.CaptureGraceMs)
	num("ECAPTUREQ_INGEST_GRACE_MS", &cfg.Pipeline.IngestGraceMs)
	num("ECAPTUREQ_STOP_GRACE_MS", &cfg.Pipeline.StopGraceMs)
	str("ECAPTUREQ_DIAG_DATA_DIR", &cfg.Diagnostics.DataDir)
	num("ECAPTUREQ_DIAG_MAX_ENTRIES", &cfg.Diagnostics.MaxEntries)
	str("ECAPTUREQ_NATS_URL", &cfg.Sinks.NATSURL)
	str("ECAPTUREQ_NATS_SUBJECT", &cfg.Sinks.NATSSubject)
	str("ECAPTUREQ_AMQP_URL", &cfg.Sinks.AMQPURL)
	str("ECAPTUREQ_AMQP_EXCHANGE", &cfg.Sinks.AMQPExchange)
	num("ECAPTUREQ_SUB_BUF", &cfg.Sinks.SubscriberBuf)
}
