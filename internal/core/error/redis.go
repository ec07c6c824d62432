package errx

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified Error type. A missing key is
// not a failure and callers are expected to check redis.Nil before wrapping;
// it is passed through unchanged so errors.Is(err, redis.Nil) keeps working.
func WrapRedis(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return New(KindStorage, err, RedisErrorMessage)
}
