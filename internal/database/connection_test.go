package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/mailclean/config"
)

func TestValidateConfig(t *testing.T) {
	valid := func() *config.DatabaseConfig {
		return &config.DatabaseConfig{
			Host: "localhost", Port: "5432", User: "u", Password: "p", DBName: "mailclean", SSLMode: "disable",
		}
	}

	assert.NoError(t, validateConfig(valid()))
	assert.Error(t, validateConfig(nil))

	missingHost := valid()
	missingHost.Host = ""
	assert.Error(t, validateConfig(missingHost))

	missingSSL := valid()
	missingSSL.SSLMode = ""
	assert.Error(t, validateConfig(missingSSL))
}

func TestNewConnection_InvalidPort(t *testing.T) {
	_, err := NewConnection(&config.DatabaseConfig{
		Host: "localhost", Port: "abc", User: "u", Password: "p", DBName: "mailclean", SSLMode: "disable",
	})
	assert.ErrorContains(t, err, "invalid port number")
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, logLevel("silent"))
	assert.Equal(t, gormlogger.Info, logLevel("INFO"))
	assert.Equal(t, gormlogger.Warn, logLevel(""))
}
