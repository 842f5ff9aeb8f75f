package env

import "os"

// Get returns the named environment variable, treating an empty value the
// same as unset.
func Get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
