package meta

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// expandEnv replaces every ${env.KEY} with the value of the environment
// variable KEY. Unset variables expand to an empty string. Malformed
// references are copied verbatim.
func expandEnv(value string) string {
	if !strings.Contains(value, envPrefix) {
		return value
	}
	var b strings.Builder
	rest := value
	for {
		idx := strings.Index(rest, envPrefix)
		if idx < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:idx])
		keyStart := idx + len(envPrefix)
		end := strings.IndexByte(rest[keyStart:], '}')
		if end < 0 {
			b.WriteString(rest[idx:])
			return b.String()
		}
		key := rest[keyStart : keyStart+end]
		if !isEnvKey(key) {
			// keep the prefix and rescan what follows so nested references still expand
			b.WriteString(envPrefix)
			rest = rest[keyStart:]
			continue
		}
		b.WriteString(os.Getenv(key))
		rest = rest[keyStart+end+1:]
	}
}

func isEnvKey(key string) bool {
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
