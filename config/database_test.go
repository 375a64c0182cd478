package config

import (
	"testing"

	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	cfg := AppConfig{DBUser: "site", DBPassword: "pw", DBHost: "db", DBPort: "3306", DBName: "content"}
	want := "site:pw@tcp(db:3306)/content?charset=utf8mb4&parseTime=True&loc=UTC"
	if got := DSN(cfg); got != want {
		t.Fatalf("DSN = %s", got)
	}
	cfg.DatabaseURI = "root@unix(/tmp/mysql.sock)/x"
	if got := DSN(cfg); got != cfg.DatabaseURI {
		t.Fatalf("DatabaseURI ignored: %s", got)
	}
}

func TestGormLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":  logger.Info,
		"info":   logger.Warn,
		"":       logger.Warn,
		"error":  logger.Error,
		"silent": logger.Silent,
	}
	for in, want := range cases {
		if got := gormLevel(in); got != want {
			t.Errorf("gormLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
