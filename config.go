// config.go - Policy configuration, loadable from YAML

package minimgo

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// WriteConcernConfig mirrors the server's write concern document. WMode
// takes precedence over W when both are set; the zero value means
// "server default".
type WriteConcernConfig struct {
	W        int           `yaml:"w" validate:"gte=0"`
	WMode    string        `yaml:"wmode" validate:"omitempty,eq=majority"`
	Journal  bool          `yaml:"journal"`
	WTimeout time.Duration `yaml:"wtimeout" validate:"gte=0"`
}

// Config carries the policy defaults a Client is constructed with.
// Services embedding the engine typically load it from a YAML file next
// to their own configuration.
type Config struct {
	Database       string              `yaml:"database" validate:"required"`
	ReadPreference string              `yaml:"read_preference" validate:"omitempty,oneof=primary primaryPreferred secondary secondaryPreferred nearest"`
	WriteConcern   *WriteConcernConfig `yaml:"write_concern"`
}

// LoadConfig reads and validates a Config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return invalidArgf("config: %v", err)
	}
	return nil
}

// readPref resolves the configured read preference mode, defaulting to
// primary.
func (c *Config) readPref() (*readpref.ReadPref, error) {
	if c.ReadPreference == "" {
		return readpref.Primary(), nil
	}
	mode, err := readpref.ModeFromString(c.ReadPreference)
	if err != nil {
		return nil, invalidArgf("config: %v", err)
	}
	return readpref.New(mode)
}

// writeConcern renders the configured write concern, nil when the
// config asks for the server default.
func (c *Config) writeConcern() *writeconcern.WriteConcern {
	wcc := c.WriteConcern
	if wcc == nil {
		return nil
	}
	wc := &writeconcern.WriteConcern{WTimeout: wcc.WTimeout}
	switch {
	case wcc.WMode != "":
		wc.W = wcc.WMode
	case wcc.W > 0:
		wc.W = wcc.W
	}
	if wcc.Journal {
		j := true
		wc.Journal = &j
	}
	if wc.W == nil && wc.Journal == nil && wc.WTimeout == 0 {
		return nil
	}
	return wc
}
