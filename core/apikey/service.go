package apikey

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

var (
	// errors
	ErrNotFound         = errors.New("API key not found")
	ErrNoActiveKey      = errors.New("No active API key found for this service")
	ErrInvalidTimeRange = errors.New("Invalid time range. Must be one of 24h, 7d, 30d, 90d.")
	ErrInvalidService   = errors.New("Invalid service.")

	DefaultTimeRange = "24h"

	timeRanges = map[string]struct {
		bucket  time.Duration
		buckets int
	}{
		"24h": {time.Hour, 24},
		"7d":  {24 * time.Hour, 7},
		"30d": {24 * time.Hour, 30},
		"90d": {24 * time.Hour, 90},
	}
)

type (
	Repository interface {
		// QueryAPIKeys returns every key, newest first.
		QueryAPIKeys(ctx context.Context) ([]APIKey, error)
		GetAPIKey(ctx context.Context, id string) (APIKey, error)
		// GetActiveAPIKey returns the newest active key of service.
		GetActiveAPIKey(ctx context.Context, service string) (APIKey, error)
		CreateAPIKey(ctx context.Context, key APIKey) (APIKey, error)
		UpdateAPIKey(ctx context.Context, key APIKey) (APIKey, error)
		DeleteAPIKey(ctx context.Context, id string) error
		RecordUsage(ctx context.Context, keyID string, at time.Time) error
		// QueryUsage returns the usage times of a key since `since`, oldest first.
		QueryUsage(ctx context.Context, keyID string, since time.Time) ([]time.Time, error)
		CountUsage(ctx context.Context, keyID string) (int, error)
	}

	Service interface {
		List(ctx context.Context) ([]APIKey, error)
		GetByID(ctx context.Context, id string) (APIKey, error)
		Create(ctx context.Context, nk NewAPIKey) (APIKey, error)
		Update(ctx context.Context, key APIKey, uk UpdateAPIKey) (APIKey, error)
		Delete(ctx context.Context, id string) error
		// GetActive hands out the decrypted newest active key of service and records its use.
		GetActive(ctx context.Context, service string) (APIKey, error)
		Usage(ctx context.Context, key APIKey, timeRange string) (Usage, error)
	}

	service struct {
		repo    Repository
		cipher  *Cipher
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, cipher *Cipher) Service {
	return &service{
		repo:    repo,
		cipher:  cipher,
		nowFunc: time.Now,
	}
}

func (svc *service) List(ctx context.Context) ([]APIKey, error) {
	keys, err := svc.repo.QueryAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].Key = ""
	}
	return keys, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (APIKey, error) {
	return svc.repo.GetAPIKey(ctx, id)
}

func (svc *service) Create(ctx context.Context, nk NewAPIKey) (APIKey, error) {
	secret, err := svc.cipher.Encrypt(nk.Key)
	if err != nil {
		return APIKey{}, errors.Wrap(err, "encrypting key")
	}

	isActive := true
	if nk.IsActive != nil {
		isActive = *nk.IsActive
	}
	limit := DefaultUsageLimit
	if nk.UsageLimit != nil {
		limit = *nk.UsageLimit
	}

	now := svc.nowFunc().UTC()
	key, err := svc.repo.CreateAPIKey(ctx, APIKey{
		ID:          uuid.NewString(),
		Service:     nk.Service,
		Secret:      secret,
		Description: nk.Description,
		IsActive:    isActive,
		UsageLimit:  limit,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return APIKey{}, err
	}
	key.Key = nk.Key
	return key, nil
}

func (svc *service) Update(ctx context.Context, key APIKey, uk UpdateAPIKey) (APIKey, error) {
	if uk.Service != nil {
		key.Service = *uk.Service
	}
	if uk.Key != nil {
		secret, err := svc.cipher.Encrypt(*uk.Key)
		if err != nil {
			return APIKey{}, errors.Wrap(err, "encrypting key")
		}
		key.Secret = secret
	}
	if uk.Description != nil {
		key.Description = *uk.Description
	}
	if uk.IsActive != nil {
		key.IsActive = *uk.IsActive
	}
	if uk.UsageLimit != nil {
		key.UsageLimit = *uk.UsageLimit
	}
	key.UpdatedAt = svc.nowFunc().UTC()

	key, err := svc.repo.UpdateAPIKey(ctx, key)
	if err != nil {
		return APIKey{}, err
	}
	key.Key = ""
	return key, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAPIKey(ctx, id)
}

func (svc *service) GetActive(ctx context.Context, service string) (APIKey, error) {
	service = core.CleanString(service, true /* lower */)
	if !core.StringInSlice(service, Services) {
		return APIKey{}, ErrInvalidService
	}

	key, err := svc.repo.GetActiveAPIKey(ctx, service)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return APIKey{}, ErrNoActiveKey
		}
		return APIKey{}, err
	}

	plain, err := svc.cipher.Decrypt(key.Secret)
	if err != nil {
		return APIKey{}, errors.Wrapf(err, "decrypting key %s", key.ID)
	}

	now := svc.nowFunc().UTC()
	key.LastUsed = &now
	if key, err = svc.repo.UpdateAPIKey(ctx, key); err != nil {
		return APIKey{}, errors.Wrap(err, "setting lastUsed")
	}
	if err = svc.repo.RecordUsage(ctx, key.ID, now); err != nil {
		return APIKey{}, errors.Wrap(err, "recording usage")
	}

	key.Key = plain
	return key, nil
}

func (svc *service) Usage(ctx context.Context, key APIKey, timeRange string) (Usage, error) {
	if timeRange == "" {
		timeRange = DefaultTimeRange
	}
	tr, ok := timeRanges[timeRange]
	if !ok {
		return Usage{}, ErrInvalidTimeRange
	}

	now := svc.nowFunc().UTC()
	start := now.Truncate(tr.bucket).Add(-time.Duration(tr.buckets-1) * tr.bucket)

	uses, err := svc.repo.QueryUsage(ctx, key.ID, start)
	if err != nil {
		return Usage{}, errors.Wrap(err, "querying usage")
	}
	total, err := svc.repo.CountUsage(ctx, key.ID)
	if err != nil {
		return Usage{}, errors.Wrap(err, "counting usage")
	}

	usage := Usage{
		Current:  len(uses),
		Limit:    key.UsageLimit,
		Total:    total,
		Timeline: buildTimeline(uses, start, tr.bucket, tr.buckets),
	}
	return usage, nil
}

// buildTimeline counts uses per bucket, from start on.
func buildTimeline(uses []time.Time, start time.Time, bucket time.Duration, buckets int) []TimelinePoint {
	timeline := make([]TimelinePoint, buckets)
	for i := range timeline {
		timeline[i].Timestamp = start.Add(time.Duration(i) * bucket)
	}
	for _, t := range uses {
		if t.Before(start) {
			continue
		}
		idx := int(t.Sub(start) / bucket)
		if idx >= buckets {
			idx = buckets - 1
		}
		timeline[idx].Count++
	}
	return timeline
}
