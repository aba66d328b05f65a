package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-moments/internal/constants"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	PhotoPrism PhotoPrismConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	Labels     LabelsConfig
	Geocoder   GeocoderConfig
	Clustering ClusteringConfig
	Database   DatabaseConfig
	Web        WebConfig
	Prices     PricesConfig
}

type PhotoPrismConfig struct {
	URL         string
	Username    string
	Password    string
	Domain      string // public domain for generating photo links (e.g., https://photos.example.com)
	DatabaseURL string // MariaDB DSN for direct database access (e.g., photoprism:photoprism@tcp(mariadb:3306)/photoprism)
}

// PhotoURL returns an OSC 8 hyperlink for terminal emulators (iTerm2, etc.)
// Displays the UID but makes it clickable to open the photo in PhotoPrism
// Returns empty string if Domain is not set
func (c *PhotoPrismConfig) PhotoURL(uid string) string {
	if c.Domain == "" {
		return ""
	}
	url := c.Domain + "/library/browse?view=cards&order=oldest&q=uid:" + uid
	return "\x1b]8;;" + url + "\x1b\\" + uid + "\x1b]8;;\x1b\\"
}

type OpenAIConfig struct {
	Token string
	Model string // defaults to gpt-4.1-mini
}

type GeminiConfig struct {
	APIKey string
	Model  string // defaults to gemini-2.5-flash
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

// LabelsConfig selects the image labeler used by prompt filtering.
type LabelsConfig struct {
	Provider      string  // photoprism, openai, gemini, ollama; empty disables prompt filtering
	MinConfidence float64 // labels below this confidence are ignored
}

type GeocoderConfig struct {
	URL       string        // Nominatim base URL, empty disables titles
	UserAgent string        // required by the public Nominatim usage policy
	RPS       float64       // request rate limit
	Timeout   time.Duration // per request timeout
}

// ClusteringConfig bounds which media is clustered.
type ClusteringConfig struct {
	From time.Time // zero means unbounded
	To   time.Time
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty disables classification persistence
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration parses values like "10s" or "1m30s".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envDate parses a YYYY-MM-DD date in UTC, zero when unset or invalid.
func envDate(key string) time.Time {
	t, err := time.Parse(time.DateOnly, os.Getenv(key))
	if err != nil {
		return time.Time{}
	}
	return t
}

// envList splits a comma separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		PhotoPrism: PhotoPrismConfig{
			URL:         os.Getenv("PHOTOPRISM_URL"),
			Username:    os.Getenv("PHOTOPRISM_USERNAME"),
			Password:    os.Getenv("PHOTOPRISM_PASSWORD"),
			Domain:      os.Getenv("PHOTOPRISM_DOMAIN"),
			DatabaseURL: os.Getenv("PHOTOPRISM_DATABASE_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
			Model: os.Getenv("OPENAI_MODEL"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  os.Getenv("GEMINI_MODEL"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Labels: LabelsConfig{
			Provider:      strings.ToLower(os.Getenv("LABEL_PROVIDER")),
			MinConfidence: envFloat("LABEL_MIN_CONFIDENCE", constants.MinLabelConfidence),
		},
		Geocoder: GeocoderConfig{
			URL:       os.Getenv("GEOCODER_URL"),
			UserAgent: os.Getenv("GEOCODER_USER_AGENT"),
			RPS:       envFloat("GEOCODER_RPS", 1),
			Timeout:   envDuration("GEOCODER_TIMEOUT", 10*time.Second),
		},
		Clustering: ClusteringConfig{
			From: envDate("MOMENTS_FROM"),
			To:   envDate("MOMENTS_TO"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host:           os.Getenv("WEB_HOST"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, zero when unknown.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
