// Package postgres поднимает пул соединений pgx для хранилища инцидентов.
//
// Параметры пула берутся из config.Config поверх DATABASE_URL: заданные
// в окружении лимиты имеют приоритет над параметрами pool_* в строке подключения.
// DB_STATEMENT_TIMEOUT ограничивает каждый запрос, включая SELECT ... FOR UPDATE
// при изменении инцидента.
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_reporting_system/internal/config"
)

const applicationName = "incident_reporting_system"

// PoolConfig разбирает DATABASE_URL и применяет к нему настройки пула из конфигурации
func PoolConfig(appCfg *config.Config) (*pgxpool.Config, error) {
	cfgPool, err := pgxpool.ParseConfig(appCfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе конфигурации postgres: %w", err)
	}

	if appCfg.DBMaxConns > 0 {
		cfgPool.MaxConns = appCfg.DBMaxConns
	}
	if appCfg.DBMinConns > 0 && appCfg.DBMinConns <= cfgPool.MaxConns {
		cfgPool.MinConns = appCfg.DBMinConns
	}
	if appCfg.DBConnIdleTime > 0 {
		cfgPool.MaxConnIdleTime = appCfg.DBConnIdleTime
	}
	if appCfg.DBConnLifetime > 0 {
		cfgPool.MaxConnLifetime = appCfg.DBConnLifetime
	}

	params := cfgPool.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = applicationName
	}
	if appCfg.DBQueryTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(appCfg.DBQueryTimeout.Milliseconds(), 10)
	}
	return cfgPool, nil
}

// NewPostgresDB создает пул и проверяет соединение. При неудачном ping пул закрывается.
func NewPostgresDB(ctx context.Context, appCfg *config.Config) (*pgxpool.Pool, error) {
	cfgPool, err := PoolConfig(appCfg)
	if err != nil {
		return nil, err
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, cfgPool)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("не удалось выполнить ping к postgres (max_conns=%d): %w", cfgPool.MaxConns, err)
	}

	return dbpool, nil
}
