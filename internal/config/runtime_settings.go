package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// RuntimeSettings is the subset of configuration editable over HTTP.
// It is persisted as JSON and applied on top of the environment at
// startup and live on update.
type RuntimeSettings struct {
	LLMAPIURL         string `json:"llm_api_url"`
	LLMAPIKey         string `json:"llm_api_key"`
	LLMModel          string `json:"llm_model"`
	RetentionCron     string `json:"retention_cron"`
	NarrationLanguage string `json:"narration_language"`
	Theme             string `json:"theme"`
}

// RuntimeSettingsFilePath resolves the settings file location. Defaults
// to settings.json under the data directory.
func RuntimeSettingsFilePath() string {
	dataDir := getEnvString("DATA_DIR", "/app/data")
	return getEnvString("SETTINGS_FILE", filepath.Join(dataDir, "settings.json"))
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.LLMAPIURL) == "" {
		return fmt.Errorf("llm_api_url is required")
	}
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("llm_model is required")
	}
	if strings.TrimSpace(s.RetentionCron) == "" {
		return fmt.Errorf("retention_cron is required")
	}
	if _, err := cron.ParseStandard(s.RetentionCron); err != nil {
		return fmt.Errorf("invalid retention_cron: %w", err)
	}
	if strings.TrimSpace(s.NarrationLanguage) == "" {
		return fmt.Errorf("narration_language is required")
	}
	if _, err := language.Parse(s.NarrationLanguage); err != nil {
		return fmt.Errorf("invalid narration_language: %w", err)
	}
	return nil
}

// RuntimeSettings projects the current config into the editable subset.
func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:         c.LLM.APIURL,
		LLMAPIKey:         c.LLM.APIKey,
		LLMModel:          c.LLM.Model,
		RetentionCron:     c.Retention.Cron,
		NarrationLanguage: c.Speech.Language.String(),
		Theme:             c.Pipeline.Theme,
	}
}

// WithRuntimeSettings overlays non-empty settings values onto the
// environment-derived config.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LLMAPIURL) != "" {
			c.LLM.APIURL = settings.LLMAPIURL
		}
		if strings.TrimSpace(settings.LLMAPIKey) != "" {
			c.LLM.APIKey = settings.LLMAPIKey
		}
		if strings.TrimSpace(settings.LLMModel) != "" {
			c.LLM.Model = settings.LLMModel
		}
		if strings.TrimSpace(settings.RetentionCron) != "" {
			c.Retention.Cron = settings.RetentionCron
		}
		if tag, err := language.Parse(settings.NarrationLanguage); err == nil {
			c.Speech.Language = tag
		}
		if strings.TrimSpace(settings.Theme) != "" {
			c.Pipeline.Theme = settings.Theme
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore serializes settings reads and updates and keeps
// the persisted file in sync with the in-memory copy.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
