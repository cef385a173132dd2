package util

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
)

// IsRetryableError 判断通知消息处理失败后是否值得重投，第二个返回值用于日志与 DLQ 原因
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			// 唯一约束冲突 - 幂等，不重试
			return false, "duplicate_key"
		case pgErr.Code == pgerrcode.ForeignKeyViolation:
			// 通知引用的项目或用户已删除
			return false, "foreign_key_violation"
		case pgErr.Code == pgerrcode.CheckViolation, pgErr.Code == pgerrcode.NotNullViolation:
			return false, "constraint_violation"
		case pgErr.Code == pgerrcode.SerializationFailure, pgErr.Code == pgerrcode.DeadlockDetected:
			return true, "tx_conflict"
		case pgerrcode.IsConnectionException(pgErr.Code):
			return true, "db_connection_error"
		}
		return false, "db_error"
	}

	if pgconn.Timeout(err) {
		return true, "db_timeout"
	}

	// Context timeout - 可重试
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover, "amqp_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// ShouldRetry retryCount 从 1 开始计数
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}

// Fingerprint 在消息没有 message id 时作为重试计数的 key
func Fingerprint(body []byte) []byte {
	sum := sha256.Sum256(body)
	return sum[:8]
}
