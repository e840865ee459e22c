package config

import "time"

type Config struct {
	// JWTSecret пустой - проверка токена отключена
	JWTSecret string
	TokenTTL  time.Duration
}
