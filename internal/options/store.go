package options

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/logging"
)

// Kind is how an option is edited on the setup page
type Kind string

const (
	KindText   Kind = "text"
	KindSecret Kind = "secret"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindSelect Kind = "select"
)

// Option is one setting shown on the setup page.
type Option struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Kind    Kind     `json:"kind"`
	Group   string   `json:"group,omitempty"`
	Choices []string `json:"choices,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Value   any      `json:"value"`

	def any
}

// Store is the option document on disk. Values are kept as JSON scalars
// (string, float64, bool) keyed by option key. The file may carry
// comments and trailing commas.
type Store struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	order  []string
	opts   map[string]*Option
	loaded map[string]any
}

// Open loads the document at path. A missing file is an empty store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logging.OrNop(logger),
		opts:   make(map[string]*Option),
		loaded: make(map[string]any),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &s.loaded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Path returns the document location
func (s *Store) Path() string { return s.path }

// Define declares an option with its default value. A value already
// present in the document wins over the default.
func (s *Store) Define(opt Option) error {
	if opt.Key == "" {
		return fmt.Errorf("option key is required")
	}
	if opt.Kind == "" {
		opt.Kind = KindText
	}
	if opt.Label == "" {
		opt.Label = opt.Key
	}

	def, err := coerce(&opt, opt.Value)
	if err != nil {
		return fmt.Errorf("option %q default: %w", opt.Key, err)
	}
	opt.def = def
	opt.Value = def

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := s.loaded[opt.Key]; ok {
		if v, err := coerce(&opt, raw); err == nil {
			opt.Value = v
		} else {
			s.logger.Warn("ignoring stored option value", zap.String("key", opt.Key), zap.Error(err))
		}
	}
	if _, exists := s.opts[opt.Key]; !exists {
		s.order = append(s.order, opt.Key)
	}
	s.opts[opt.Key] = &opt
	return nil
}

// Get returns the current value of an option
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opt, ok := s.opts[key]; ok {
		return opt.Value, true
	}
	v, ok := s.loaded[key]
	return v, ok
}

// GetString returns a text option, or "" when missing
func (s *Store) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// GetBool returns a boolean option, or false when missing
func (s *Store) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// GetNumber returns a numeric option, or 0 when missing
func (s *Store) GetNumber(key string) float64 {
	v, _ := s.Get(key)
	f, _ := v.(float64)
	return f
}

// Set changes an option value in memory. Call Save to persist it.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opt, ok := s.opts[key]
	if !ok {
		return fmt.Errorf("unknown option %q", key)
	}
	v, err := coerce(opt, value)
	if err != nil {
		return fmt.Errorf("option %q: %w", key, err)
	}
	opt.Value = v
	return nil
}

// SetForm applies a submitted setup form. Checkboxes are absent from the
// form when unchecked, so every bool option is updated. Secret fields left
// empty keep their stored value.
func (s *Store) SetForm(form url.Values) error {
	s.mu.RLock()
	keys := append([]string(nil), s.order...)
	s.mu.RUnlock()

	for _, key := range keys {
		s.mu.RLock()
		kind := s.opts[key].Kind
		s.mu.RUnlock()

		var value any
		switch {
		case kind == KindBool:
			value = form.Get(key) != ""
		case !form.Has(key):
			continue
		case kind == KindSecret && form.Get(key) == "":
			continue
		default:
			value = form.Get(key)
		}
		if err := s.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// List returns the defined options in definition order.
func (s *Store) List() []Option {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Option, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.opts[key])
	}
	return out
}

// Save writes the document atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := make(map[string]any, len(s.loaded)+len(s.opts))
	for k, v := range s.loaded {
		doc[k] = v
	}
	for k, opt := range s.opts {
		doc[k] = opt.Value
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating option directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing options: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving options: %w", err)
	}

	s.mu.Lock()
	s.loaded = doc
	s.mu.Unlock()

	s.logger.Info("options saved", zap.String("path", s.path), zap.Int("count", len(doc)))
	return nil
}

// Clear deletes the document and resets every option to its default.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing options: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = make(map[string]any)
	for _, opt := range s.opts {
		opt.Value = opt.def
	}
	s.logger.Info("options cleared", zap.String("path", s.path))
	return nil
}

func coerce(opt *Option, v any) (any, error) {
	switch opt.Kind {
	case KindBool:
		switch b := v.(type) {
		case nil:
			return false, nil
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
	case KindNumber:
		var f float64
		switch n := v.(type) {
		case nil:
			f = 0
		case float64:
			f = n
		case int:
			f = float64(n)
		case string:
			parsed, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", n)
			}
			f = parsed
		default:
			return nil, fmt.Errorf("not a number: %v", v)
		}
		if opt.Min != nil && f < *opt.Min {
			return nil, fmt.Errorf("%v is below minimum %v", f, *opt.Min)
		}
		if opt.Max != nil && f > *opt.Max {
			return nil, fmt.Errorf("%v is above maximum %v", f, *opt.Max)
		}
		return f, nil
	case KindSelect:
		str, ok := v.(string)
		if v == nil && len(opt.Choices) > 0 {
			return opt.Choices[0], nil
		}
		if !ok {
			return nil, fmt.Errorf("not a string: %v", v)
		}
		for _, c := range opt.Choices {
			if c == str {
				return str, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %v", str, opt.Choices)
	default:
		switch str := v.(type) {
		case nil:
			return "", nil
		case string:
			return str, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s value %v", opt.Kind, v)
}

// Bound returns a pointer for Option.Min and Option.Max
func Bound(f float64) *float64 { return &f }
