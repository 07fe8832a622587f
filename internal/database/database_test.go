package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type gormLine struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Component string `json:"component"`
	Trace     struct {
		SQL   string `json:"sql"`
		Error string `json:"error"`
	} `json:"trace"`
}

func query() (string, int64) { return "SELECT 1", 1 }

func TestGormLoggerWritesThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := context.Background()

	prod := gormLogger(log, false)
	prod.Trace(ctx, time.Now(), query, nil)
	prod.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Zero(t, buf.Len(), "fast queries and misses stay quiet")

	prod.Trace(ctx, time.Now(), query, errors.New("boom"))
	var line gormLine
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line.Level)
	assert.Equal(t, "gorm", line.Component)
	assert.Equal(t, "SELECT 1", line.Trace.SQL)
	assert.Equal(t, "boom", line.Trace.Error)

	buf.Reset()
	gormLogger(log, true).Trace(ctx, time.Now(), query, nil)
	line = gormLine{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line.Level)
	assert.Equal(t, "SQL executed", line.Msg)
}
