// Package config provides loading and environment overlay for ecaptureq
// configuration: the event source address, the capture command line, the
// operator filter and the pipeline tunables.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/ecaptureq.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
package config
