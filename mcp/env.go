package mcp

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// InterpolateEnv replaces ${VAR} references with values from lookup.
// Unset variables become empty strings. Bare $VAR is left alone.
func InterpolateEnv(value string, lookup func(string) (string, bool)) string {
	return envRefPattern.ReplaceAllStringFunc(value, func(ref string) string {
		name := envRefPattern.FindStringSubmatch(ref)[1]
		v, _ := lookup(name)
		return v
	})
}

// configToEnv builds a child environment: the parent environment followed
// by the server's declared variables after interpolation.
func configToEnv(envMap map[string]string) []string {
	env := os.Environ()

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, InterpolateEnv(envMap[k], os.LookupEnv)))
	}
	return env
}
