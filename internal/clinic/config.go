// Package clinic provides clinic-level settings for quota tracking: the
// appointment type tags that mark funded sessions, quota overrides and the
// connected practice-management systems.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
)

// ErrInvalidSettings is returned when settings fail validation.
var ErrInvalidSettings = errors.New("clinic: invalid settings")

// Settings holds clinic-specific configuration.
type Settings struct {
	ClinicID string   `json:"clinic_id"`
	Name     string   `json:"name"`
	Timezone string   `json:"timezone"` // e.g., "Australia/Sydney"
	WCTags   []string `json:"wc_tags"`
	EPCTags  []string `json:"epc_tags"`
	// QuotaOverrides replaces the system default quota for a scheme when positive.
	QuotaOverrides quota.Quotas `json:"quota_overrides"`
	// PMSConnections lists the practice-management systems synced for this clinic.
	PMSConnections []pms.Type `json:"pms_connections,omitempty"`
	// AutoSync enables scheduled syncs for every connected PMS.
	AutoSync  bool      `json:"auto_sync"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DefaultSettings returns the settings used before a clinic saves its own.
func DefaultSettings(clinicID string) *Settings {
	return &Settings{
		ClinicID: clinicID,
		Timezone: "Australia/Sydney",
		WCTags:   []string{"WC", "WorkCover", "Workers Comp"},
		EPCTags:  []string{"EPC", "Enhanced Primary Care"},
	}
}

// Rules returns the quota rules for this clinic, layered over system defaults.
func (s *Settings) Rules(defaults quota.Quotas) quota.Rules {
	return quota.Rules{
		Tags:     quota.Tags{WC: s.WCTags, EPC: s.EPCTags},
		Quotas:   defaults.Merge(s.QuotaOverrides),
		Location: s.Location(),
	}
}

// Location returns the clinic's time zone, falling back to UTC when unset or unknown.
func (s *Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks tag lists are non-empty and overrides are not negative.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ClinicID) == "" {
		return fmt.Errorf("%w: clinic_id required", ErrInvalidSettings)
	}
	if len(cleanTags(s.WCTags)) == 0 {
		return fmt.Errorf("%w: wc_tags must not be empty", ErrInvalidSettings)
	}
	if len(cleanTags(s.EPCTags)) == 0 {
		return fmt.Errorf("%w: epc_tags must not be empty", ErrInvalidSettings)
	}
	if s.QuotaOverrides.WC < 0 || s.QuotaOverrides.EPC < 0 {
		return fmt.Errorf("%w: quota overrides must not be negative", ErrInvalidSettings)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, s.Timezone)
		}
	}
	return nil
}

// Warnings lists non-fatal configuration problems.
func (s *Settings) Warnings() []string {
	var out []string
	for _, tag := range (quota.Tags{WC: s.WCTags, EPC: s.EPCTags}).Overlap() {
		out = append(out, fmt.Sprintf("tag %q is configured for both WC and EPC; it will be counted as WC", tag))
	}
	return out
}

func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

const indexKey = "clinic:settings:index"

// Store provides persistence for clinic settings.
type Store struct {
	redis *redis.Client
	now   func() time.Time
}

// NewStore creates a new clinic settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient, now: time.Now}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:settings:%s", clinicID)
}

// Get retrieves clinic settings, returning defaults if none are saved.
func (s *Store) Get(ctx context.Context, clinicID string) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultSettings(clinicID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Set validates and saves clinic settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	settings.WCTags = cleanTags(settings.WCTags)
	settings.EPCTags = cleanTags(settings.EPCTags)
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(settings.ClinicID), data, 0)
	pipe.SAdd(ctx, indexKey, settings.ClinicID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}

// ListClinicIDs returns every clinic with saved settings.
func (s *Store) ListClinicIDs(ctx context.Context) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("clinic: list clinics: %w", err)
	}
	return ids, nil
}
