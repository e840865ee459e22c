// Package catalog настройки тарификации и справочник начислений.
// Чтения кешируются в Redis, если он подключён.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/warehouse/internal/model"
	"github.com/iurnickita/warehouse/internal/store"
)

type Catalog interface {
	Settings(ctx context.Context) (model.BillingSettings, error)
	PutSettings(ctx context.Context, settings model.BillingSettings) (model.BillingSettings, error)
	ChargeTypes(ctx context.Context, category string, activeOnly bool) ([]model.ChargeType, error)
	CreateChargeType(ctx context.Context, chargeType model.ChargeType) (model.ChargeType, error)
}

var (
	ErrInvalidSettings   = errors.New("invalid billing settings")
	ErrInvalidChargeType = errors.New("invalid charge type")
	ErrChargeTypeExists  = errors.New("charge type already exists")
)

const (
	settingsKey        = "billing:settings"
	chargeTypesKey     = "billing:charge-types:%s:%t"
	chargeTypesKeysSet = "billing:charge-types:keys"
	cacheTTL           = 10 * time.Minute
)

var hundred = decimal.NewFromInt(100)

type catalog struct {
	store    store.Store
	rdb      *redis.Client
	defaults model.BillingSettings
	zaplog   *zap.Logger
}

// NewCatalog rdb может быть nil, тогда кеш не используется.
// defaults действуют, пока настройки не сохранены.
func NewCatalog(store store.Store, rdb *redis.Client, defaults model.BillingSettings, zaplog *zap.Logger) Catalog {
	return &catalog{
		store:    store,
		rdb:      rdb,
		defaults: defaults,
		zaplog:   zaplog,
	}
}

func (c *catalog) Settings(ctx context.Context) (model.BillingSettings, error) {
	var settings model.BillingSettings
	if c.cacheGet(ctx, settingsKey, &settings) {
		return settings, nil
	}

	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		settings, err = tx.SettingsGet(ctx)
		if errors.Is(err, store.ErrNoRows) {
			settings = c.defaults
			return nil
		}
		return err
	})
	if err != nil {
		return model.BillingSettings{}, err
	}
	c.cacheSet(ctx, settingsKey, settings)
	return settings, nil
}

func (c *catalog) PutSettings(ctx context.Context, settings model.BillingSettings) (model.BillingSettings, error) {
	if settings.Currency == "" {
		settings.Currency = c.defaults.Currency
	}
	if err := validateSettings(settings); err != nil {
		return model.BillingSettings{}, err
	}
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		return tx.SettingsPut(ctx, settings)
	})
	if err != nil {
		return model.BillingSettings{}, err
	}
	c.cacheDel(ctx, settingsKey)
	return settings, nil
}

func (c *catalog) ChargeTypes(ctx context.Context, category string, activeOnly bool) ([]model.ChargeType, error) {
	key := fmt.Sprintf(chargeTypesKey, category, activeOnly)
	var list []model.ChargeType
	if c.cacheGet(ctx, key, &list) {
		return list, nil
	}

	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.ChargeTypeList(ctx, category, activeOnly)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c.cacheSet(ctx, key, list) {
		if err = c.rdb.SAdd(ctx, chargeTypesKeysSet, key).Err(); err != nil {
			c.zaplog.Warn("cache key set", zap.Error(err))
		}
	}
	return list, nil
}

func (c *catalog) CreateChargeType(ctx context.Context, ct model.ChargeType) (model.ChargeType, error) {
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	if ct.Category == "" {
		ct.Category = model.ChargeCategoryRelease
	}
	if err := validateChargeType(ct); err != nil {
		return model.ChargeType{}, err
	}

	err := c.store.InTx(ctx, func(tx store.Tx) error {
		return tx.ChargeTypePost(ctx, ct)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return model.ChargeType{}, fmt.Errorf("%w: %s", ErrChargeTypeExists, ct.Code)
	}
	if err != nil {
		return model.ChargeType{}, err
	}

	// Сбрасываем все закешированные выборки справочника
	if c.rdb != nil {
		keys, err := c.rdb.SMembers(ctx, chargeTypesKeysSet).Result()
		if err != nil {
			c.zaplog.Warn("cache key set", zap.Error(err))
		}
		c.cacheDel(ctx, append(keys, chargeTypesKeysSet)...)
	}
	return ct, nil
}

func validateSettings(s model.BillingSettings) error {
	switch {
	case s.StorageRatePerBox.IsNegative():
		return fmt.Errorf("%w: negative storage rate", ErrInvalidSettings)
	case s.TaxRate.IsNegative() || s.TaxRate.GreaterThan(hundred):
		return fmt.Errorf("%w: tax rate must be within 0..100", ErrInvalidSettings)
	case s.GracePeriodDays < 0:
		return fmt.Errorf("%w: negative grace period", ErrInvalidSettings)
	case s.MinimumCharge.IsNegative():
		return fmt.Errorf("%w: negative minimum charge", ErrInvalidSettings)
	case s.Currency == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidSettings)
	}
	return nil
}

func validateChargeType(ct model.ChargeType) error {
	switch {
	case ct.Code == "" || ct.Name == "":
		return fmt.Errorf("%w: code and name are required", ErrInvalidChargeType)
	case !ct.Kind.Valid():
		return fmt.Errorf("%w: unknown calculation type %q", ErrInvalidChargeType, ct.Kind)
	case ct.Rate.IsNegative():
		return fmt.Errorf("%w: negative rate", ErrInvalidChargeType)
	case ct.Kind == model.ChargePercentage && ct.Rate.GreaterThan(hundred):
		return fmt.Errorf("%w: percentage above 100", ErrInvalidChargeType)
	case ct.MinCharge.Valid && ct.MaxCharge.Valid && ct.MinCharge.Decimal.GreaterThan(ct.MaxCharge.Decimal):
		return fmt.Errorf("%w: minCharge above maxCharge", ErrInvalidChargeType)
	}
	switch ct.Category {
	case model.ChargeCategoryRelease, model.ChargeCategoryStorage, model.ChargeCategoryCustom:
		return nil
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidChargeType, ct.Category)
	}
}

// Кеш. Ошибки Redis не прерывают запрос: пишем в лог и идём в хранилище.

func (c *catalog) cacheGet(ctx context.Context, key string, dest any) bool {
	if c.rdb == nil {
		return false
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.zaplog.Warn("cache get", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err = json.Unmarshal(val, dest); err != nil {
		c.zaplog.Warn("cache decode", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *catalog) cacheSet(ctx context.Context, key string, obj any) bool {
	if c.rdb == nil {
		return false
	}
	val, err := json.Marshal(obj)
	if err != nil {
		c.zaplog.Warn("cache encode", zap.String("key", key), zap.Error(err))
		return false
	}
	if err = c.rdb.Set(ctx, key, val, cacheTTL).Err(); err != nil {
		c.zaplog.Warn("cache set", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *catalog) cacheDel(ctx context.Context, keys ...string) {
	if c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.zaplog.Warn("cache del", zap.Strings("keys", keys), zap.Error(err))
	}
}
