package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// LogFields flattens err into structured log fields: the top message, the
// typed code, every wrapped layer, and driver details from Postgres or Redis
// when one of them sits in the chain. It never leaves the process.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{
		"error":      err.Error(),
		"error_code": CodeOf(err),
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields["pg_code"] = pgErr.Code
		fields["pg_message"] = pgErr.Message
		if pgErr.ConstraintName != "" {
			fields["pg_constraint"] = pgErr.ConstraintName
		}
		if pgErr.TableName != "" {
			fields["pg_table"] = pgErr.TableName
		}
		if pgErr.Detail != "" {
			fields["pg_detail"] = pgErr.Detail
		}
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		fields["redis_message"] = redisErr.Error()
	}
	return fields
}
