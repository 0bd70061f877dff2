package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittocache/internal/telemetry"
	"github.com/marmos91/dittocache/pkg/tracker"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot
// express. All problems are reported together.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	var errs []error

	t := tracker.Config{
		MaxSize:          cfg.Tracker.MaxSize.Int64(),
		Period:           cfg.Tracker.Period,
		StrictAccounting: cfg.Tracker.StrictAccounting,
	}
	if err := t.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracker: %w", err))
	}

	seen := make(map[string]bool, len(cfg.Caches))
	for i, c := range cfg.Caches {
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("caches[%d]: duplicate cache name %q", i, c.Name))
		}
		seen[c.Name] = true

		if err := validateBackend(c.Backend); err != nil {
			errs = append(errs, fmt.Errorf("caches[%d] (%s): %w", i, c.Name, err))
		}
	}

	if cfg.Metrics.Enabled && cfg.API.IsEnabled() && cfg.Metrics.Port == cfg.API.Port {
		errs = append(errs, fmt.Errorf("metrics.port %d conflicts with api.port", cfg.Metrics.Port))
	}

	if cfg.Telemetry.Profiling.Enabled {
		for _, pt := range cfg.Telemetry.Profiling.ProfileTypes {
			if !telemetry.IsValidProfileType(pt) {
				errs = append(errs, fmt.Errorf("telemetry.profiling: unknown profile type %q", pt))
			}
		}
	}

	return errors.Join(errs...)
}

func validateBackend(b BackendConfig) error {
	switch b.Type {
	case BackendMemory:
		if b.Memory.Latency < 0 {
			return errors.New("memory.latency must not be negative")
		}
	case BackendFilesystem:
		if b.Filesystem.Path == "" {
			return errors.New("filesystem.path is required")
		}
	case BackendS3:
		if b.S3.Bucket == "" {
			return errors.New("s3.bucket is required")
		}
		if (b.S3.AccessKeyID == "") != (b.S3.SecretAccessKey == "") {
			return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
		}
	case BackendBadger:
		if b.Badger.Path == "" && !b.Badger.InMemory {
			return errors.New("badger.path is required unless badger.in_memory is set")
		}
	}
	return nil
}

// formatValidationError turns validator errors into one line per field,
// naming the failed tag.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
