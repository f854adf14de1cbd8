package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

// ErrInvalidConfig is returned by LoadConfig when the environment does not
// describe a usable deployment.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultInterval       = 5 * time.Minute
	defaultRequestTimeout = 30 * time.Second
)

// Config holds the application configuration
type Config struct {
	Primary     NodeConfig   `json:"primary"`
	Secondaries []NodeConfig `json:"secondaries" validate:"dive"`
	Sync        SyncConfig   `json:"sync"`
	App         AppConfig    `json:"app"`
}

// NodeConfig describes one Pi-hole instance.
type NodeConfig struct {
	Name     string `json:"name" validate:"required"`
	URL      string `json:"url" validate:"required,http_url"`
	Password string `json:"-" validate:"required"`
}

// SyncConfig holds scheduling and transport settings
type SyncConfig struct {
	Interval       time.Duration `json:"interval" validate:"gte=0"`
	Cron           string        `json:"cron"`
	DryRun         bool          `json:"dry_run"`
	RequestTimeout time.Duration `json:"request_timeout" validate:"gt=0"`
}

// AppConfig holds process-level settings
type AppConfig struct {
	LogLevel      string `json:"log_level" validate:"required"`
	LogFile       string `json:"log_file"`
	HealthPort    int    `json:"health_port" validate:"min=1,max=65535"`
	AllowedOrigin string `json:"allowed_origin"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetDefault("SYNC_INTERVAL", defaultInterval.String())
	v.SetDefault("HTTP_TIMEOUT", defaultRequestTimeout.String())
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HEALTH_PORT", 8080)
	v.SetDefault("ALLOWED_ORIGIN", "*")
	v.AutomaticEnv()

	var problems []string

	interval, err := parseDuration(v.GetString("SYNC_INTERVAL"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("SYNC_INTERVAL: %v", err))
	}
	timeout, err := parseDuration(v.GetString("HTTP_TIMEOUT"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("HTTP_TIMEOUT: %v", err))
	}
	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("HEALTH_PORT")))
	if err != nil {
		problems = append(problems, "HEALTH_PORT must be an integer")
	}

	cfg := &Config{
		Primary: NodeConfig{
			Name:     teleporter.PrimaryNodeName,
			URL:      strings.TrimSpace(v.GetString("PRIMARY_PIHOLE_URL")),
			Password: v.GetString("PRIMARY_PIHOLE_PASSWORD"),
		},
		Secondaries: bindSecondaries(
			splitValues(v.GetString("SECONDARY_PIHOLE_URLS")),
			splitValues(v.GetString("SECONDARY_PIHOLE_PASSWORDS")),
			splitValues(v.GetString("SECONDARY_PIHOLE_NAMES")),
		),
		Sync: SyncConfig{
			Interval:       interval,
			Cron:           strings.TrimSpace(v.GetString("SYNC_CRON")),
			DryRun:         parseBool(v.GetString("SYNC_DRY_RUN")),
			RequestTimeout: timeout,
		},
		App: AppConfig{
			LogLevel:      strings.TrimSpace(v.GetString("LOG_LEVEL")),
			LogFile:       strings.TrimSpace(v.GetString("LOG_FILE")),
			HealthPort:    port,
			AllowedOrigin: v.GetString("ALLOWED_ORIGIN"),
		},
	}

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Nodes converts the validated configuration into the primary node and the
// secondaries in configured order.
func (c *Config) Nodes() (teleporter.Node, []teleporter.Node, error) {
	primary, err := c.Primary.node(teleporter.RolePrimary)
	if err != nil {
		return teleporter.Node{}, nil, err
	}
	secondaries := make([]teleporter.Node, 0, len(c.Secondaries))
	for _, s := range c.Secondaries {
		n, err := s.node(teleporter.RoleSecondary)
		if err != nil {
			return teleporter.Node{}, nil, err
		}
		secondaries = append(secondaries, n)
	}
	return primary, secondaries, nil
}

func (n NodeConfig) node(role teleporter.Role) (teleporter.Node, error) {
	u, err := url.Parse(n.URL)
	if err != nil {
		return teleporter.Node{}, fmt.Errorf("%w: node %s: %v", ErrInvalidConfig, n.Name, err)
	}
	return teleporter.Node{Name: n.Name, BaseURL: u, Password: n.Password, Role: role}, nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) validate() []string {
	var problems []string

	var verrs validator.ValidationErrors
	if err := structValidator.Struct(c); errors.As(err, &verrs) {
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	} else if err != nil {
		problems = append(problems, err.Error())
	}

	seen := make(map[string]bool, len(c.Secondaries))
	for _, s := range c.Secondaries {
		key := strings.ToLower(s.URL)
		if s.URL == "" {
			continue
		}
		if seen[key] {
			problems = append(problems, "SECONDARY_PIHOLE_URLS contains duplicate entries")
			break
		}
		seen[key] = true
	}

	if c.Sync.Interval <= 0 && c.Sync.Cron == "" {
		problems = append(problems, "either SYNC_INTERVAL must be positive or SYNC_CRON must be provided")
	}
	return problems
}

func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	switch {
	case strings.HasPrefix(ns, "Config.Primary.URL"):
		return "PRIMARY_PIHOLE_URL must be an absolute http(s) URL"
	case strings.HasPrefix(ns, "Config.Primary.Password"):
		return "PRIMARY_PIHOLE_PASSWORD must be provided"
	case strings.HasPrefix(ns, "Config.Secondaries") && fe.Field() == "URL":
		return fmt.Sprintf("%s: SECONDARY_PIHOLE_URLS must include absolute http(s) URLs", ns)
	case strings.HasPrefix(ns, "Config.Secondaries") && fe.Field() == "Password":
		return fmt.Sprintf("%s: SECONDARY_PIHOLE_PASSWORDS must provide a password for each URL", ns)
	case strings.HasPrefix(ns, "Config.Secondaries") && fe.Field() == "Name":
		return fmt.Sprintf("%s: each secondary must have a name", ns)
	case ns == "Config.Sync.RequestTimeout":
		return "HTTP_TIMEOUT must be greater than zero"
	case ns == "Config.Sync.Interval":
		return "SYNC_INTERVAL must not be negative"
	case ns == "Config.App.HealthPort":
		return "HEALTH_PORT must be between 1 and 65535"
	case ns == "Config.App.LogLevel":
		return "LOG_LEVEL must be provided"
	}
	return fmt.Sprintf("%s failed %s validation", ns, fe.Tag())
}

// bindSecondaries zips the three comma lists by position. A missing name
// defaults to the URL host, then to secondary-N.
func bindSecondaries(urls, passwords, names []string) []NodeConfig {
	count := max(len(urls), len(passwords), len(names))
	nodes := make([]NodeConfig, 0, count)
	for i := 0; i < count; i++ {
		n := NodeConfig{
			URL:      at(urls, i),
			Password: at(passwords, i),
			Name:     at(names, i),
		}
		if n.Name == "" {
			n.Name = defaultName(n.URL, i)
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func defaultName(rawURL string, index int) string {
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() && u.Hostname() != "" {
		return u.Hostname()
	}
	return fmt.Sprintf("secondary-%d", index+1)
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func splitValues(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true")
}

// parseDuration accepts Go durations ("90s", "5m") and clock notation
// ("00:05:00", "1.02:00:00" for one day and two hours).
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}

	var days time.Duration
	clock := value
	if dot := strings.Index(value, "."); dot > 0 && dot < strings.Index(value, ":") {
		n, err := strconv.Atoi(value[:dot])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		days = time.Duration(n) * 24 * time.Hour
		clock = value[dot+1:]
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	limits := []float64{24, 60, 60}
	total := days
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || f >= limits[i] || (i < len(parts)-1 && f != float64(int(f))) {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		total += time.Duration(f * float64(units[i]))
	}
	return total, nil
}
