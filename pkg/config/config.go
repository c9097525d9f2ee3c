package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider     string
	GoogleApiKey    string
	OpenAIApiKey    string
	AnthropicApiKey string
	ReasoningModel  string
	FastModel       string

	SearchProvider       string
	TavilyApiKey         string
	MistralApiKey        string
	SearchMaxResults     int
	SearchScoreThreshold float64

	CheckpointBackend  string
	DatabaseURL        string
	RedisURL           string
	CheckpointTTLHours int

	Port        string
	PromptsFile string
	MaxSteps    int

	IndexSources   bool
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	CollectionName string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LLMProvider:     getEnv("LLM_PROVIDER", "googleai"),
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", ""),
		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicApiKey: getEnv("ANTHROPIC_API_KEY", ""),
		ReasoningModel:  getEnv("REASONING_MODEL", ""),
		FastModel:       getEnv("FAST_MODEL", ""),

		SearchProvider:       getEnv("SEARCH_PROVIDER", "tavily"),
		TavilyApiKey:         getEnv("TAVILY_API_KEY", ""),
		MistralApiKey:        getEnv("MISTRAL_API_KEY", ""),
		SearchMaxResults:     getEnvAsInt("SEARCH_MAX_RESULTS", 10),
		SearchScoreThreshold: getEnvAsFloat("SEARCH_SCORE_THRESHOLD", 0.45),

		CheckpointBackend:  getEnv("CHECKPOINT_BACKEND", "memory"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CheckpointTTLHours: getEnvAsInt("CHECKPOINT_TTL_HOURS", 0),

		Port:        getEnv("PORT", "8081"),
		PromptsFile: getEnv("PROMPTS_FILE", ""),
		MaxSteps:    getEnvAsInt("MAX_STEPS", 40),

		IndexSources:   getEnvAsBool("INDEX_SOURCES", false),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_sources"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
