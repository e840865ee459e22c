package config

import "time"

type Config struct {
	// RedisAddr пустой - кеш и блокировки в памяти процесса
	RedisAddr      string
	LockTTL        time.Duration
	ReportInterval time.Duration
	Billing        Billing
}

// Billing настройки тарификации по умолчанию, пока они не сохранены через API.
type Billing struct {
	StorageRatePerBox     string
	TaxRate               string
	GracePeriodDays       int
	Currency              string
	MinimumCharge         string
	RequireIDVerification bool
	RequireReleasePhotos  bool
}
