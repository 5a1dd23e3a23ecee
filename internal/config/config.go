package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	DataDir       string
	SessionsDir   string
	MemoryDir     string
	WorkspaceDir  string
	HostWorkspace string
	JournalPath   string
	SystemPrompt  string
	LogLevel      string
	LogPath       string

	Channels []string
	WSAddr   string

	ProviderBaseURL  string
	ProviderModel    string
	ProviderAPIKey   string
	CompactThreshold int
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("AGENTD_DATA_DIR", ".")
	return Config{
		DataDir:       dataDir,
		SessionsDir:   getEnv("AGENTD_SESSIONS_DIR", filepath.Join(dataDir, "sessions")),
		MemoryDir:     getEnv("AGENTD_MEMORY_DIR", filepath.Join(dataDir, "memory")),
		WorkspaceDir:  getEnv("AGENTD_WORKSPACE_DIR", filepath.Join(dataDir, "workspace")),
		HostWorkspace: getEnv("WORKSPACE_HOST_PATH", ""),
		JournalPath:   getEnv("AGENTD_JOURNAL_PATH", filepath.Join(dataDir, "memory", "journal.db")),
		SystemPrompt:  getEnv("AGENTD_SYSTEM_PROMPT", filepath.Join(dataDir, "memory", "SYSTEM.md")),
		LogLevel:      getEnv("AGENTD_LOG_LEVEL", "info"),
		LogPath:       getEnv("AGENTD_LOG_PATH", filepath.Join(dataDir, "log", "agent.log")),

		Channels: splitList(getEnv("AGENTD_CHANNELS", "terminal")),
		WSAddr:   getEnv("AGENTD_WS_ADDR", ":8765"),

		ProviderBaseURL:  getEnv("AGENTD_PROVIDER_BASE_URL", ""),
		ProviderModel:    getEnv("AGENTD_PROVIDER_MODEL", "gpt-4o-mini"),
		ProviderAPIKey:   getEnv("AGENTD_PROVIDER_API_KEY", ""),
		CompactThreshold: getEnvInt("AGENTD_COMPACT_THRESHOLD", 0),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
