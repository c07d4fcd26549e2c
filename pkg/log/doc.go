// Package log is the structured logging facade used throughout ecaptureq.
//
// A Logger carries leveled methods and typed Fields. Records pass through a
// slog handler into a Formatter (text or JSON) and one or more Outputs.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.WithComponent("ingest")
//	l.Info("connected", log.Str("url", url))
//
// ApplyConfig builds a Logger from a declarative Config. RedactKeys masks
// field values and SampleInitial/SampleThereafter thin out repeated messages
// such as decode failures during a frame storm.
//
// Capture sessions and stream subscribers are tagged on a context with
// ContextWithSession and ContextWithSubscriber; Logger.WithContext turns those
// tags into fields. RedirectStdLog routes the standard library logger, which
// Pebble writes to, through the facade.
package log
