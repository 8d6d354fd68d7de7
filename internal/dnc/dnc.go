// Package dnc keeps a fast do-not-contact index in Redis so call setup can
// acknowledge an existing opt-out without scanning the per-day logs. The
// append-only logs stay the source of truth; this index is best effort.
package dnc

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reliefline/chloe-voice/pkg/logging"
)

const keyPrefix = "dnc:phone:"

var nonDigitRE = regexp.MustCompile(`\D`)

// Index marks and looks up opted-out phone numbers.
type Index struct {
	rdb    *redis.Client
	logger *logging.Logger
}

// New creates a Redis-backed do-not-contact index.
func New(rdb *redis.Client, logger *logging.Logger) *Index {
	if logger == nil {
		logger = logging.Default()
	}
	return &Index{rdb: rdb, logger: logger}
}

func key(phone string) (string, error) {
	digits := nonDigitRE.ReplaceAllString(phone, "")
	if len(digits) < 10 || len(digits) > 15 {
		return "", fmt.Errorf("dnc: unusable phone %q", phone)
	}
	return keyPrefix + digits, nil
}

// Mark records the phone as do-not-contact, pointing at the opt-out record.
func (i *Index) Mark(ctx context.Context, phone, recordID string) error {
	k, err := key(phone)
	if err != nil {
		return err
	}
	if err := i.rdb.Set(ctx, k, recordID, 0).Err(); err != nil {
		return fmt.Errorf("dnc: mark: %w", err)
	}
	i.logger.Info("dnc: marked", "record_id", recordID)
	return nil
}

// IsMarked reports whether the phone has an opt-out on file.
func (i *Index) IsMarked(ctx context.Context, phone string) (bool, error) {
	k, err := key(phone)
	if err != nil {
		return false, err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = i.rdb.Get(lookupCtx, k).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dnc: lookup: %w", err)
	}
	return true, nil
}
