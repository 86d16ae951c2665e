package db

import (
	"strings"
	"testing"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{
		Host:     "db.local",
		Port:     "3307",
		User:     "reels",
		Password: "p@ss:word",
		Name:     "reels",
	})

	for _, want := range []string{"reels:p@ss:word@tcp(db.local:3307)/reels", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q does not contain %q", dsn, want)
		}
	}
}
