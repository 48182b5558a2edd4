package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestSetup_JSONOutput はJSON形式でログが出力されることを検証する。
func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "info")

	logger.Info("test message", slog.String("key", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログ出力がJSONではありません: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg: got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key: got %v", entry["key"])
	}
}

// TestSetup_Level はレベル文字列による出力フィルタを検証する。
func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "warn")

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("warnレベルでInfoログが出力されました: %s", buf.String())
	}

	logger.Warn("should be logged")
	if buf.Len() == 0 {
		t.Error("Warnログが出力されていません")
	}
}

// TestSetup_UnknownLevel は不明なレベル文字列がinfoとして扱われることを検証する。
func TestSetup_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "verbose")

	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("不明なレベルでInfoログが出力されていません")
	}
}
