// Package config loads the channel list and output layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Resolve methods a channel can ask for.
const (
	MethodResolver = "resolver"
	MethodBrowser  = "browser"
)

// Channel is one TV channel to generate playlists for.
type Channel struct {
	Name string `yaml:"name"`

	// Slug names the output files (<slug>.m3u8) and must be unique
	Slug string `yaml:"slug"`

	URL string `yaml:"url"`

	// Method selects how the URL is resolved; empty means MethodResolver
	Method string `yaml:"method"`
}

// DisplayName returns Name, or the slug when no name is set.
func (c Channel) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Slug
}

// Output describes where playlists are written, relative to the working directory.
type Output struct {
	Folder     string `yaml:"folder"`
	BestFolder string `yaml:"bestFolder"`

	// MasterFolder empty writes master playlists straight into Folder
	MasterFolder string `yaml:"masterFolder"`
}

// Config holds the complete application configuration
type Config struct {
	Output Output `yaml:"output"`

	// HTTP resolver settings
	HTTP struct {
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"userAgent"`
	} `yaml:"http"`

	// Headless browser settings
	Browser struct {
		Timeout    time.Duration `yaml:"timeout"`
		ChromePath string        `yaml:"chromePath"`
		Headless   *bool         `yaml:"headless"`
		NoSandbox  bool          `yaml:"noSandbox"`
	} `yaml:"browser"`

	Channels []Channel `yaml:"channels"`
}

// Default returns a Config with default values and no channels.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a JSON or YAML config file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	var errors []string

	if c.HTTP.Timeout < 0 {
		errors = append(errors, "http.timeout must be positive")
	}
	if c.Browser.Timeout < 0 {
		errors = append(errors, "browser.timeout must be positive")
	}

	for _, dir := range []struct{ key, value string }{
		{"output.folder", c.Output.Folder},
		{"output.bestFolder", c.Output.BestFolder},
		{"output.masterFolder", c.Output.MasterFolder},
	} {
		clean := filepath.ToSlash(filepath.Clean(dir.value))
		if filepath.IsAbs(dir.value) || clean == ".." || strings.HasPrefix(clean, "../") {
			errors = append(errors, fmt.Sprintf("%s must be a relative path inside the working directory, got %q", dir.key, dir.value))
		}
	}

	masterDir, bestDir := c.Output.MasterFolder, c.Output.BestFolder
	if bestDir == "" {
		bestDir = "best"
	}
	if filepath.Clean("./"+masterDir) == filepath.Clean("./"+bestDir) {
		errors = append(errors, "output.masterFolder and output.bestFolder must differ")
	}

	seen := make(map[string]int, len(c.Channels))
	for i, ch := range c.Channels {
		switch {
		case ch.Slug == "":
			errors = append(errors, fmt.Sprintf("channel %d: slug is required", i))
		case strings.ContainsAny(ch.Slug, `/\`) || ch.Slug == "." || ch.Slug == "..":
			errors = append(errors, fmt.Sprintf("channel %d: slug %q must be a plain file name", i, ch.Slug))
		default:
			if first, dup := seen[ch.Slug]; dup {
				errors = append(errors, fmt.Sprintf("channel %d: slug %q already used by channel %d", i, ch.Slug, first))
			}
			seen[ch.Slug] = i
		}

		switch ch.Method {
		case "", MethodResolver, MethodBrowser:
		default:
			errors = append(errors, fmt.Sprintf("channel %d (%s): unknown method %q", i, ch.Slug, ch.Method))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.Output.Folder == "" {
		c.Output.Folder = "streams"
	}
	if c.Output.BestFolder == "" {
		c.Output.BestFolder = "best"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = 20 * time.Second
	}
	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}
	for i := range c.Channels {
		if c.Channels[i].Method == "" {
			c.Channels[i].Method = MethodResolver
		}
	}
}

// Paths are the absolute output directories.
type Paths struct {
	Root   string
	Master string
	Best   string
}

// ResolvePaths anchors the output folders at cwd.
func (o Output) ResolvePaths(cwd string) Paths {
	root := filepath.Join(cwd, o.Folder)

	master := root
	if o.MasterFolder != "" {
		master = filepath.Join(root, o.MasterFolder)
	}

	return Paths{
		Root:   root,
		Master: master,
		Best:   filepath.Join(root, o.BestFolder),
	}
}

// Ensure creates every output directory that does not exist yet.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Root, p.Master, p.Best} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// MasterFile is the master playlist path for slug.
func (p Paths) MasterFile(slug string) string {
	return filepath.Join(p.Master, slug+".m3u8")
}

// BestFile is the best playlist path for slug.
func (p Paths) BestFile(slug string) string {
	return filepath.Join(p.Best, slug+".m3u8")
}
