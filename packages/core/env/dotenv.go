package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadDotEnv reads KEY=value pairs from a .env file. Blank lines, # comments
// and an optional leading "export " are accepted, and matching single or
// double quotes around a value are removed. The process environment is not
// modified.
func LoadDotEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer f.Close()

	vars, err := parseDotEnv(f)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return vars, nil
}

func parseDotEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		vars[key] = unquote(strings.TrimSpace(value))
	}
	return vars, sc.Err()
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyDotEnv loads path into c. Keys already present in c are overwritten.
func ApplyDotEnv(c *Context, path string) error {
	vars, err := LoadDotEnv(path)
	if err != nil {
		return err
	}
	for k, v := range vars {
		c.Set(k, v)
	}
	return nil
}

// SystemVariables returns process environment variables starting with
// prefix, with the prefix stripped.
func SystemVariables(prefix string) map[string]any {
	out := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if prefix == "" {
			out[k] = v
			continue
		}
		if name, ok := strings.CutPrefix(k, prefix); ok && name != "" {
			out[name] = v
		}
	}
	return out
}
