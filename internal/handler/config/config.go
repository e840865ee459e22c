package config

type Config struct {
	ServerAddr string
	// RateLimit лимит запросов с одного адреса в формате limiter, например "100-S".
	// Пустой - без ограничения.
	RateLimit string
}
