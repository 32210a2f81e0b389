package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type options struct {
	dotenv []string
	prefix string
}

// Option customizes Load.
type Option func(*options)

// WithDotenv loads the given files into the environment before parsing.
// Missing files are skipped and variables already set are never overridden.
func WithDotenv(files ...string) Option {
	return func(o *options) {
		o.dotenv = append(o.dotenv, files...)
	}
}

// WithPrefix reads every variable as prefix+name.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// Load parses environment variables into the provided struct using its
// `env` and `envDefault` tags.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"CATALOGUE_HTTP_PORT" envDefault:"8020"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	for _, file := range o.dotenv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: o.prefix}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
