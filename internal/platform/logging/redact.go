package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// sensitiveFields are attribute and struct field names whose values are
// always redacted. Message metadata is logged with the unit of work, so
// client-supplied credentials would otherwise end up in the log.
var sensitiveFields = []string{
	"password",
	"token",
	"access_token",
	"refresh_token",
	"api_key",
	"apiKey",
	"authorization",
	"cookie",
	"credentials",
	"signature",
	"webhook_secret",
}

// sensitivePrefixes redact every field starting with one of them.
var sensitivePrefixes = []string{"secret", "private"}

// sensitiveValues redact a value by its shape whatever the field name.
var sensitiveValues = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+$`),
}

// DefaultRedactOptions returns the masq options applied to every record.
func DefaultRedactOptions() []masq.Option {
	opts := make([]masq.Option, 0, len(sensitiveFields)+len(sensitivePrefixes)+len(sensitiveValues))
	for _, f := range sensitiveFields {
		opts = append(opts, masq.WithFieldName(f))
	}
	for _, p := range sensitivePrefixes {
		opts = append(opts, masq.WithFieldPrefix(p))
	}
	for _, re := range sensitiveValues {
		opts = append(opts, masq.WithRegex(re))
	}
	return opts
}

// NewReplaceAttr returns a slog ReplaceAttr that redacts with
// DefaultRedactOptions extended by opts.
func NewReplaceAttr(opts ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(DefaultRedactOptions(), opts...)...)
}
