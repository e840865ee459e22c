package config

type Config struct {
	// DBDsn строка подключения к PostgreSQL. Пустая - хранилище в памяти.
	DBDsn string
}
