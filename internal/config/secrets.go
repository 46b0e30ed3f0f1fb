package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Exchange
	redact(&out.Exchange.APIKey)
	redact(&out.Exchange.APISecret)

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	redact(&out.Server.APIKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Scan.Whitelist = cloneStrings(cfg.Scan.Whitelist)
	out.Scan.Blacklist = cloneStrings(cfg.Scan.Blacklist)
	out.Spot.Exchanges = cloneStrings(cfg.Spot.Exchanges)
	out.Spot.Symbols = cloneStrings(cfg.Spot.Symbols)
	out.Kafka.Brokers = cloneStrings(cfg.Kafka.Brokers)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Spot.OrderSizes != nil {
		out.Spot.OrderSizes = make(map[string]float64, len(cfg.Spot.OrderSizes))
		for k, v := range cfg.Spot.OrderSizes {
			out.Spot.OrderSizes[k] = v
		}
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

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
