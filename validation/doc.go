// Package validation checks configuration before a run starts.
//
// Struct tags cover single-field rules and report configuration keys:
//
//	type Config struct {
//	    WorkerCount int `mapstructure:"worker_count" validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// The programmatic Validator collects cross-field rules:
//
//	v := validation.New()
//	v.Positive("worker_count", cfg.WorkerCount)
//	v.Custom(limit >= 10*batch, "throttling_limit", "too small for batch size")
//	err := v.Validate()
//
// Both return VALIDATION_FAILED AppErrors.
package validation
