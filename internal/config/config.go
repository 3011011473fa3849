package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

type Config struct {
	Provider  ProviderConfig
	Dlib      DlibConfig
	Sidecar   SidecarConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Database  DatabaseConfig
	Guestlist GuestlistConfig
	Profiles  ProfilesConfig
}

type ProviderConfig struct {
	Name string // face embedding backend: "dlib" (default) or "sidecar"
}

type DlibConfig struct {
	ModelsDir string // directory holding the dlib .dat model files (default "models")
}

type SidecarConfig struct {
	URL            string // embedding sidecar base URL (default http://localhost:8000)
	Model          string // model name passed to the sidecar (default "buffalo_l")
	FastDetSize    int    // detector input size for the fast fidelity (default 640)
	PreciseDetSize int    // detector input size for the precise fidelity (default 1600)
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for the embedding cache (optional)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type GuestlistConfig struct {
	DSN   string // MySQL DSN of the event platform's RSVP database (optional)
	Table string // guest table name (default "guests")
}

type ProfilesConfig struct {
	Profiles map[string]MatchProfile `yaml:"profiles"`
}

// MatchProfile bundles the distance-scale dependent matching thresholds.
// Profiles exist because usable values differ between metrics: dlib
// euclidean distances and arcface cosine distances live on different scales.
type MatchProfile struct {
	Metric               string  `yaml:"metric"`                 // "euclidean" or "cosine"
	Tolerance            float64 `yaml:"tolerance"`              // strict accept boundary
	Margin               float64 `yaml:"margin"`                 // required gap to the runner-up
	TypicalGoodMatch     float64 `yaml:"typical_good_match"`     // single-guest floor for the strict tolerance
	TypicalGoodRelaxed   float64 `yaml:"typical_good_relaxed"`   // single-guest floor for the relaxed tolerance
	MaxCandidateDistance float64 `yaml:"max_candidate_distance"` // beyond this a reject is not even a candidate
	RefineCutoff         float64 `yaml:"refine_cutoff"`          // loose cutoff for collecting refinement samples
	RefineTolerance      float64 `yaml:"refine_tolerance"`       // fixed tolerance for refined sweeps
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

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var profiles ProfilesConfig
	if err := yaml.Unmarshal(profilesYAML, &profiles); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded profiles.yaml: " + err.Error())
	}

	return &Config{
		Provider: ProviderConfig{
			Name: envString("PROVIDER", "dlib"),
		},
		Dlib: DlibConfig{
			ModelsDir: envString("DLIB_MODELS_DIR", "models"),
		},
		Sidecar: SidecarConfig{
			URL:            envString("SIDECAR_URL", "http://localhost:8000"),
			Model:          envString("SIDECAR_MODEL", "buffalo_l"),
			FastDetSize:    envInt("SIDECAR_FAST_DET_SIZE", 640),
			PreciseDetSize: envInt("SIDECAR_PRECISE_DET_SIZE", 1600),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Guestlist: GuestlistConfig{
			DSN:   os.Getenv("GUESTLIST_DSN"),
			Table: envString("GUESTLIST_TABLE", "guests"),
		},
		Profiles: profiles,
	}
}

// GetMatchProfile returns the named matching profile from the embedded table.
func (c *Config) GetMatchProfile(name string) (MatchProfile, error) {
	if p, ok := c.Profiles.Profiles[name]; ok {
		return p, nil
	}
	names := make([]string, 0, len(c.Profiles.Profiles))
	for n := range c.Profiles.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return MatchProfile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(names, ", "))
}
