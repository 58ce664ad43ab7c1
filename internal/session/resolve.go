package session

import "github.com/pbaptista/rally/internal/config"

const DefaultName = "main"

// Resolve determines the active session name using precedence:
// --session flag, then config.toml default_session, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultName
}
