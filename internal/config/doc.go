// Package config manages user-level settings stored at ~/.airule/config.yaml.
// It provides functions to load, read, and write configuration keys such as
// the source cache TTL and the default lockfile enforcement mode.
package config
