package config

import (
	"bufio"
	"os"
	"strings"
)

// loadEnvFiles seeds the process environment from local .env files so a
// developer can point ENGINE_BASE_URL or DATABASE_URL somewhere without
// exporting them. Variables already set in the environment are never
// replaced, and the first file that sets a key wins. Missing files are
// skipped. The keys it set are returned.
func loadEnvFiles(paths ...string) []string {
	var loaded []string
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			key, val, ok := parseEnvLine(scanner.Text())
			if !ok {
				continue
			}
			if _, set := os.LookupEnv(key); set {
				continue
			}
			if os.Setenv(key, val) == nil {
				loaded = append(loaded, key)
			}
		}
		_ = f.Close()
	}
	return loaded
}

// parseEnvLine accepts KEY=VALUE with an optional "export " prefix. Quoted
// values keep their content verbatim; unquoted ones lose a trailing
// " # comment".
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
		return key, val[1 : n-1], true
	}
	if i := strings.Index(val, " #"); i >= 0 {
		val = strings.TrimSpace(val[:i])
	}
	return key, val, true
}
