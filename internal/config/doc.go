// Package config loads the Train Control Container configuration.
//
// Values come from Baseline(), then an optional YAML file, then TCC_*
// environment variables, and are checked by Validate before use.
package config
