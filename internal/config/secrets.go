package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Marketplace.SecretKey)
	redact(&out.Marketplace.KeyPassword)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Filters.BlacklistTerms != nil {
		out.Filters.BlacklistTerms = make([]string, len(cfg.Filters.BlacklistTerms))
		copy(out.Filters.BlacklistTerms, cfg.Filters.BlacklistTerms)
	}
	if cfg.Scan.Games != nil {
		out.Scan.Games = make([]string, len(cfg.Scan.Games))
		copy(out.Scan.Games, cfg.Scan.Games)
	}
	if cfg.Scan.Tiers != nil {
		out.Scan.Tiers = make([]string, len(cfg.Scan.Tiers))
		copy(out.Scan.Tiers, cfg.Scan.Tiers)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
