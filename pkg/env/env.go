package env

import "os"

// Get reads key from the environment, treating an empty value the same as
// an unset one, and falls back to the provided default.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
