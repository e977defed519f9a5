package builtin

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownFunc is returned by Call for names that are not registered.
var ErrUnknownFunc = errors.New("unknown function")

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Func is a placeholder function. Arguments arrive already unquoted.
type Func func(args []string) (any, error)

// Registry maps function names to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func, len(defaults))}
	for name, fn := range defaults {
		r.funcs[name] = fn
	}
	return r
}

var defaults = map[string]Func{
	"uuid":         func([]string) (any, error) { return uuid.New().String(), nil },
	"now":          func([]string) (any, error) { return time.Now().UTC().Format(time.RFC3339), nil },
	"timestamp":    func([]string) (any, error) { return time.Now().Unix(), nil },
	"timestampMs":  func([]string) (any, error) { return time.Now().UnixMilli(), nil },
	"date":         date,
	"random":       random,
	"randomString": randomString,
	"base64":       unary(func(s string) (any, error) { return base64.StdEncoding.EncodeToString([]byte(s)), nil }),
	"base64Decode": unary(base64Decode),
	"sha256": unary(func(s string) (any, error) {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:]), nil
	}),
	"upper": unary(func(s string) (any, error) { return strings.ToUpper(s), nil }),
	"lower": unary(func(s string) (any, error) { return strings.ToLower(s), nil }),
	"trim":  unary(func(s string) (any, error) { return strings.TrimSpace(s), nil }),
	"env":   env,
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

var callPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// IsCall reports whether expr looks like a function call.
func IsCall(expr string) bool {
	return callPattern.MatchString(expr)
}

// Call evaluates an expression such as `random(1, 6)`.
func (r *Registry) Call(expr string) (any, error) {
	m := callPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, fmt.Errorf("not a function call: %q", expr)
	}

	r.mu.RLock()
	fn, ok := r.funcs[m[1]]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunc, m[1])
	}

	v, err := fn(splitArgs(m[2]))
	if err != nil {
		return nil, fmt.Errorf("%s(): %w", m[1], err)
	}
	return v, nil
}

// splitArgs splits a comma separated argument list, honouring single and
// double quotes.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		args  []string
		cur   strings.Builder
		quote byte
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote == 0 && (ch == '"' || ch == '\''):
			quote = ch
		case quote != 0 && ch == quote:
			quote = 0
		case quote == 0 && ch == ',':
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	return append(args, strings.TrimSpace(cur.String()))
}

func unary(fn func(string) (any, error)) Func {
	return func(args []string) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(args[0])
	}
}

func base64Decode(s string) (any, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func date(args []string) (any, error) {
	layout := "2006-01-02"
	if len(args) > 0 && args[0] != "" {
		layout = args[0]
	}
	return time.Now().UTC().Format(layout), nil
}

func random(args []string) (any, error) {
	lo, hi := 0, 100
	if len(args) == 2 {
		var err error
		if lo, err = strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("min %q is not an integer", args[0])
		}
		if hi, err = strconv.Atoi(args[1]); err != nil {
			return nil, fmt.Errorf("max %q is not an integer", args[1])
		}
	}
	if hi < lo {
		return nil, fmt.Errorf("max %d is below min %d", hi, lo)
	}
	return rand.Intn(hi-lo+1) + lo, nil
}

func randomString(args []string) (any, error) {
	n := 16
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return nil, fmt.Errorf("length %q is not a non-negative integer", args[0])
		}
		n = v
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(b), nil
}

func env(args []string) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
	}
	if v, ok := os.LookupEnv(args[0]); ok {
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return "", nil
}
