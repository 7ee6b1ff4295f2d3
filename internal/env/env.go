package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Table composes the environment handed to supervised services. Layering,
// lowest to highest precedence: the OS environment (opt-in via UseOS),
// entries loaded from env files, global KEY=VALUE entries, then the
// per-service list supplied at Merge time. Files and globals share one
// layer; callers apply them in precedence order.
type Table struct {
	base    map[string]string
	globals map[string]string
}

func New() *Table {
	return &Table{globals: make(map[string]string)}
}

// UseOS caches the current process environment as the base layer.
func (t *Table) UseOS() {
	t.base = make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := splitKV(kv); ok {
			t.base[k] = v
		}
	}
}

// Set records a global variable.
func (t *Table) Set(k, v string) {
	if t.globals == nil {
		t.globals = make(map[string]string)
	}
	t.globals[k] = v
}

// SetAll records a list of KEY=VALUE globals, skipping malformed entries.
func (t *Table) SetAll(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := splitKV(kv); ok {
			t.Set(k, v)
		}
	}
}

// LoadFile reads a .env style file (KEY=VALUE lines, # comments, no export
// keyword, no quoting) into the global layer.
func (t *Table) LoadFile(path string) error {
	m, err := parseFile(path)
	if err != nil {
		return err
	}
	for k, v := range m {
		t.Set(k, v)
	}
	return nil
}

// Merge composes the final "KEY=VALUE" slice for one service: base layer,
// then globals, then the per-service entries, with a single pass of ${VAR}
// expansion against the composed map. The result is sorted so repeated
// merges are stable.
func (t *Table) Merge(perService []string) []string {
	m := make(map[string]string, len(t.base)+len(t.globals)+len(perService))
	for k, v := range t.base {
		m[k] = v
	}
	for k, v := range t.globals {
		m[k] = v
	}
	for _, kv := range perService {
		if k, v, ok := splitKV(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func splitKV(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand replaces ${VAR} references using the composed map. No recursion.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}

func parseFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean) // #nosec G304 -- path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := splitKV(line); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m, nil
}
