package httpapi

import (
	"time"

	"github.com/John-Robertt/subforge/internal/config"
	"github.com/John-Robertt/subforge/internal/source"
)

// Options controls HTTP API runtime behavior.
//
// Keep it small: this service is a compiler pipeline, not a framework.
type Options struct {
	// ConvertTimeout is the hard upper bound for a single conversion request
	// (fetch + parse + compile + render). 0 defers to the config file.
	ConvertTimeout time.Duration

	// FetchTimeout overrides the per-HTTP-request timeout of the config file.
	FetchTimeout time.Duration

	// Config returns the live configuration; it is called once per request.
	Config func() *config.Config

	// Fetcher replaces the HTTP fetch client built from the config.
	Fetcher source.Fetcher
}

func (o Options) withDefaults() Options {
	if o.Config == nil {
		c := config.Default()
		o.Config = func() *config.Config { return c }
	}
	return o
}

func (o Options) convertTimeout(c *config.Config) time.Duration {
	if o.ConvertTimeout > 0 {
		return o.ConvertTimeout
	}
	return c.Server.ConvertTimeout
}
