package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"integrationd/core"
	"integrationd/core/processors"
	"integrationd/store"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Core     core.Config                `yaml:",inline"`
	HubSpot  *processors.HubSpotConfig  `yaml:"hubspot,omitempty"`
	Notion   *processors.NotionConfig   `yaml:"notion,omitempty"`
	Airtable *processors.AirtableConfig `yaml:"airtable,omitempty"`

	Store store.Config `yaml:"store"`
	Port  string       `yaml:"port"`
}

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	appConfig := loadConfigFromYAML(configPath)
	applyDefaults(appConfig)

	logger := newLogger(appConfig.Core.Flavour)
	slog.SetDefault(logger)

	st := initStore(appConfig.Store)
	defer st.Close()

	registry := core.NewRegistry(initProcessors(appConfig, st))
	server := core.NewServer(registry, logger)

	mux := http.NewServeMux()
	server.Routes(mux)

	log.Printf("Starting integrationd server on port %s", appConfig.Port)
	log.Printf("Configured providers: %v", registry.Providers())

	if err := http.ListenAndServe(":"+appConfig.Port, server.RequestLogger(mux)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func loadConfigFromYAML(path string) *AppConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file %s: %v", path, err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		log.Fatalf("Failed to parse config file: %v", err)
	}

	return &config
}

// applyDefaults fills port, environment-sourced client credentials and the
// local redirect URIs used by the reference deployment. Production configs
// are expected to set redirect URIs explicitly.
func applyDefaults(cfg *AppConfig) {
	if cfg.Port == "" {
		cfg.Port = "8000"
	}

	if cfg.HubSpot != nil {
		fallbackEnv(&cfg.HubSpot.ClientID, "HUBSPOT_CLIENT_ID")
		fallbackEnv(&cfg.HubSpot.ClientSecret, "HUBSPOT_CLIENT_SECRET")
		defaultRedirectURI(&cfg.HubSpot.RedirectURI, cfg.Port, core.ProviderHubSpot)
	}
	if cfg.Notion != nil {
		fallbackEnv(&cfg.Notion.ClientID, "NOTION_CLIENT_ID")
		fallbackEnv(&cfg.Notion.ClientSecret, "NOTION_CLIENT_SECRET")
		defaultRedirectURI(&cfg.Notion.RedirectURI, cfg.Port, core.ProviderNotion)
	}
	if cfg.Airtable != nil {
		fallbackEnv(&cfg.Airtable.ClientID, "AIRTABLE_CLIENT_ID")
		fallbackEnv(&cfg.Airtable.ClientSecret, "AIRTABLE_CLIENT_SECRET")
		defaultRedirectURI(&cfg.Airtable.RedirectURI, cfg.Port, core.ProviderAirtable)
	}
}

func initStore(cfg store.Config) store.Store {
	switch strings.ToLower(cfg.Type) {
	case "redis":
		st, err := store.NewRedisStore(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize Redis store: %v", err)
		}
		log.Printf("Using Redis state store: %s", cfg.Addr)
		return st

	case "", "memory":
		log.Println("Using in-memory state store")
		return store.NewMemoryStore()

	default:
		log.Fatalf("Unsupported store type: %s (supported: redis, memory)", cfg.Type)
		return nil
	}
}

func initProcessors(cfg *AppConfig, st store.Store) map[core.Provider]core.Processor {
	processorMap := make(map[core.Provider]core.Processor)

	if cfg.HubSpot != nil {
		processorMap[core.ProviderHubSpot] = processors.NewHubSpotProcessor(cfg.HubSpot, st)
		log.Println("HubSpot integration processor initialized")
	}

	if cfg.Notion != nil {
		processorMap[core.ProviderNotion] = processors.NewNotionProcessor(cfg.Notion, st)
		log.Println("Notion integration processor initialized")
	}

	if cfg.Airtable != nil {
		processorMap[core.ProviderAirtable] = processors.NewAirtableProcessor(cfg.Airtable, st)
		log.Println("Airtable integration processor initialized")
	}

	return processorMap
}

func newLogger(flavour core.Flavour) *slog.Logger {
	level := slog.LevelInfo
	if flavour.IsDev() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func fallbackEnv(target *string, key string) {
	if *target == "" {
		*target = os.Getenv(key)
	}
}

func defaultRedirectURI(target *string, port string, provider core.Provider) {
	if *target == "" {
		*target = fmt.Sprintf("http://localhost:%s/integrations/%s/oauth2callback", port, provider)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
