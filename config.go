package wyrm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-wyrm/pkg/lexer"
)

// Named doctypes accepted by Config.DefaultDoctype.
const (
	DoctypeHTML5             = "html5"
	DoctypeHTML4Strict       = "html4-strict"
	DoctypeHTML4Transitional = "html4-transitional"
	DoctypeHTML4Frameset     = "html4-frameset"
	DoctypeXHTML1Strict      = "xhtml1-strict"
	DoctypeXHTML1Trans       = "xhtml1-transitional"
	DoctypeXHTML1Frameset    = "xhtml1-frameset"
	DoctypeXHTML11           = "xhtml1.1"
)

// doctypeSelectors maps configuration names onto the selector keys the
// `html` command uses.
var doctypeSelectors = map[string]string{
	DoctypeHTML5:             "5",
	DoctypeHTML4Strict:       "4 strict",
	DoctypeHTML4Transitional: "4 transitional",
	DoctypeHTML4Frameset:     "4 frameset",
	DoctypeXHTML1Strict:      "1 strict",
	DoctypeXHTML1Trans:       "1 transitional",
	DoctypeXHTML1Frameset:    "1 frameset",
	DoctypeXHTML11:           "1.1",
}

// Config is the immutable engine configuration, threaded explicitly
// through resolution and rendering rather than held in process-wide state.
type Config struct {
	// TabWidth is the column width a tab expands to; 0 means 4.
	TabWidth int `yaml:"tab_width"`

	// SearchDirs are template directories searched in order when no custom
	// loader is supplied.
	SearchDirs []string `yaml:"search_dirs"`

	// DefaultDoctype is one of the Doctype* names; empty means html5.
	DefaultDoctype string `yaml:"default_doctype"`

	// SanitizeMarkdown runs `md` output through an HTML sanitizer.
	SanitizeMarkdown bool `yaml:"sanitize_markdown"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{TabWidth: lexer.DefaultTabWidth, DefaultDoctype: DoctypeHTML5}
}

// Validate checks fields against their allowed values.
func (c Config) Validate() error {
	if c.TabWidth < 0 {
		return fmt.Errorf("wyrm: tab width must not be negative, got %d", c.TabWidth)
	}
	if c.DefaultDoctype != "" {
		if _, ok := doctypeSelectors[c.DefaultDoctype]; !ok {
			return fmt.Errorf("wyrm: unknown doctype %q", c.DefaultDoctype)
		}
	}
	return nil
}

func (c Config) tabWidth() int {
	if c.TabWidth > 0 {
		return c.TabWidth
	}
	return lexer.DefaultTabWidth
}

func (c Config) doctypeSelector() string {
	if c.DefaultDoctype == "" {
		return doctypeSelectors[DoctypeHTML5]
	}
	return doctypeSelectors[c.DefaultDoctype]
}

// LoadConfig reads a YAML configuration file and applies defaults to any
// field left unset.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("wyrm: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("wyrm: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
