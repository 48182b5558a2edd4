// Package liveupdate はコメントのライブ更新チャネルを提供する。
// WebSocketでページを購読し、受信した通知をオーケストレーターに引き渡す。
package liveupdate

import "time"

const (
	// initialBackoff は再接続の初回遅延。
	initialBackoff = 1 * time.Second
	// maxBackoff は再接続の最大遅延。
	maxBackoff = 256 * time.Second
)

// CalculateBackoff は連続切断回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大256秒。接続成功でリセットされる。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
