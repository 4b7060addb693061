// Package config loads the YAML file describing the managed servers.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/readiness"
	"github.com/jacobweinstock/vmedia/redfish"
)

const (
	DefaultPowerOffTimeout = 60 * time.Second
	DefaultPresignTTL      = 4 * time.Hour
	DefaultNATSSubject     = "vmedia.installs.finished"
)

// Config is the configuration file.
type Config struct {
	// WaitForSSH enables the readiness check after power on.
	WaitForSSH      bool          `yaml:"wait_for_ssh"`
	Servers         []Server      `yaml:"servers"`
	Readiness       Readiness     `yaml:"readiness"`
	PowerOffTimeout time.Duration `yaml:"power_off_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// VerifyTLS validates management endpoint certificates. Off by default, BMCs ship self-signed certificates.
	VerifyTLS     bool   `yaml:"verify_tls"`
	WritableMedia bool   `yaml:"writable_media"`
	BootTarget    string `yaml:"boot_target"`
	// MetricsFile is a node exporter textfile collector path.
	MetricsFile string `yaml:"metrics_file"`
	S3          S3     `yaml:"s3"`
	Notify      Notify `yaml:"notify"`
}

// Server is one managed server.
type Server struct {
	Name       string `yaml:"name"`
	IDRACHost  string `yaml:"idrac_host"`
	IDRACUser  string `yaml:"idrac_user"`
	IDRACPass  string `yaml:"idrac_pass"`
	ISOURL     string `yaml:"iso_url"`
	TargetHost string `yaml:"target_host"`
}

type Readiness struct {
	Port     int           `yaml:"port"`
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// S3 is the object store holding s3:// images.
type S3 struct {
	Endpoint       string        `yaml:"endpoint"`
	Region         string        `yaml:"region"`
	AccessKey      string        `yaml:"access_key"`
	SecretKey      string        `yaml:"secret_key"`
	ForcePathStyle bool          `yaml:"force_path_style"`
	PresignTTL     time.Duration `yaml:"presign_ttl"`
}

type Notify struct {
	Webhook *Webhook `yaml:"webhook"`
	NATS    *NATS    `yaml:"nats"`
}

type Webhook struct {
	URL string `yaml:"url"`
	// Secrets by algorithm, sha256 or sha512.
	Secrets map[string][]string `yaml:"secrets"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, &vmedia.ConfigurationError{Reason: err.Error()}
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) setDefaults() {
	if c.Readiness.Port == 0 {
		c.Readiness.Port = readiness.DefaultPort
	}
	if c.Readiness.Timeout == 0 {
		c.Readiness.Timeout = readiness.DefaultTimeout
	}
	if c.Readiness.Interval == 0 {
		c.Readiness.Interval = readiness.DefaultInterval
	}
	if c.PowerOffTimeout == 0 {
		c.PowerOffTimeout = DefaultPowerOffTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = redfish.DefaultTimeout
	}
	if c.BootTarget == "" {
		c.BootTarget = vmedia.BootTargetCD
	}
	if c.S3.PresignTTL == 0 {
		c.S3.PresignTTL = DefaultPresignTTL
	}
	if c.Notify.NATS != nil && c.Notify.NATS.Subject == "" {
		c.Notify.NATS.Subject = DefaultNATSSubject
	}
}

func (c *Config) validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, s := range c.Servers {
		if s.Name == "" {
			errs = append(errs, &vmedia.ConfigurationError{Name: fmt.Sprintf("servers[%d]", i), Reason: "name is required"})
			continue
		}
		if seen[s.Name] {
			errs = append(errs, &vmedia.ConfigurationError{Name: s.Name, Reason: "duplicate server name"})
		}
		seen[s.Name] = true
		for _, f := range []struct{ key, value string }{
			{"idrac_host", s.IDRACHost},
			{"idrac_user", s.IDRACUser},
			{"idrac_pass", s.IDRACPass},
			{"iso_url", s.ISOURL},
			{"target_host", s.TargetHost},
		} {
			if f.value == "" {
				errs = append(errs, &vmedia.ConfigurationError{Name: s.Name, Reason: f.key + " is required"})
			}
		}
	}
	if c.Readiness.Port < 1 || c.Readiness.Port > 65535 {
		errs = append(errs, &vmedia.ConfigurationError{Name: "readiness.port", Reason: fmt.Sprintf("%d is not a valid port", c.Readiness.Port)})
	}
	if c.Readiness.Timeout < 0 || c.Readiness.Interval < 0 || c.PowerOffTimeout < 0 || c.RequestTimeout < 0 {
		errs = append(errs, &vmedia.ConfigurationError{Reason: "durations must not be negative"})
	}
	if w := c.Notify.Webhook; w != nil {
		if w.URL == "" {
			errs = append(errs, &vmedia.ConfigurationError{Name: "notify.webhook.url", Reason: "is required"})
		}
		for algo := range w.Secrets {
			if _, err := vmedia.ParseAlgorithm(algo); err != nil {
				errs = append(errs, &vmedia.ConfigurationError{Name: "notify.webhook.secrets", Reason: err.Error()})
			}
		}
	}
	if n := c.Notify.NATS; n != nil && n.URL == "" {
		errs = append(errs, &vmedia.ConfigurationError{Name: "notify.nats.url", Reason: "is required"})
	}

	return errors.Join(errs...)
}

// Server returns the configured server called name.
func (c *Config) Server(name string) (Server, error) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, nil
		}
	}
	return Server{}, &vmedia.ConfigurationError{Name: name, Reason: "server not found"}
}

// Target resolves the install target of the server called name.
func (c *Config) Target(name string) (vmedia.Target, error) {
	s, err := c.Server(name)
	if err != nil {
		return vmedia.Target{}, err
	}
	return vmedia.Target{
		Name:     s.Name,
		Endpoint: s.IDRACHost,
		Username: s.IDRACUser,
		Password: s.IDRACPass,
		ImageURL: s.ISOURL,
		Host:     s.TargetHost,
	}, nil
}
