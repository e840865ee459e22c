package config

type Config struct {
	LogLevel string
	// Development консольный вывод вместо JSON
	Development bool
}
