package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/abracadabra/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func BuildDSN(cfg *config.DBConfig) string {
	addr := cfg.DBHost

	// Cloud SQL unix socket wins when INSTANCE_CONNECTION_NAME is set.
	switch {
	case cfg.InstanceConnectionName != "":
		addr = fmt.Sprintf("unix(/cloudsql/%s)", cfg.InstanceConnectionName)
	case strings.HasPrefix(cfg.DBHost, "tcp("), strings.HasPrefix(cfg.DBHost, "unix("):
	case strings.HasPrefix(cfg.DBHost, "/"):
		addr = fmt.Sprintf("unix(%s)", cfg.DBHost)
	default:
		addr = fmt.Sprintf("tcp(%s:%s)", cfg.DBHost, cfg.DBPort)
	}

	return fmt.Sprintf("%s:%s@%s/%s?charset=utf8mb4&parseTime=True&loc=Local", cfg.DBUser, cfg.DBPassword, addr, cfg.DBName)
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	}
	db, err := gorm.Open(mysql.Open(BuildDSN(cfg)), gcfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)

	return db, nil
}
