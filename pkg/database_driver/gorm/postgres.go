package gorm

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options of a PostgreSQL connection
type Options struct {
	Host            string
	Port            string
	Username        string
	Password        string
	DbName          string
	SSLMode         bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the connection string
func (o Options) DSN() string {
	sslmode := "disable"
	if o.SSLMode {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v sslmode=%v connect_timeout=5",
		o.Host, o.Username, o.Password, o.DbName, o.Port, sslmode)
}

// ConnectToPostgreSQL func
func ConnectToPostgreSQL(opts Options) (*gorm.DB, error) {
	if opts.Host == "" && opts.Port == "" && opts.DbName == "" {
		return nil, errors.New("cannot establish the connection: postgres is not configured")
	}

	pg, err := gorm.Open(postgres.Open(opts.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		logrus.Error(err)
		return nil, err
	}

	sqlDB, err := pg.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	logrus.Infof("Connected to postgres at %s:%s/%s", opts.Host, opts.Port, opts.DbName)
	return pg, nil
}

// DisconnectPostgres func
func DisconnectPostgres(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDb, err := db.DB()
	if err != nil {
		logrus.Error(err)
		return
	}
	if err = sqlDb.Close(); err != nil {
		logrus.Error(err)
	}
	logrus.Println("Connection with postgres has closed")
}
