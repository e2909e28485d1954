package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/voice-order/internal/session"
)

// Uploader abstracts object upload for finished-call records.
type Uploader interface {
	Upload(key, contentType string, data []byte) error
}

// Config holds the Supabase Storage settings.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase uploads objects to a Supabase Storage bucket.
type Supabase struct {
	client *supabase.Client
	bucket string
}

func NewSupabase(cfg Config) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &Supabase{client: client, bucket: cfg.Bucket}, nil
}

func (s *Supabase) Upload(key, _ string, data []byte) error {
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}

// record is the archived shape of a call.
type record struct {
	ArchivedAt time.Time        `json:"archived_at"`
	Session    *session.Session `json:"session"`
}

// Archiver stores finished sessions as JSON under calls/<yyyy-mm-dd>/<id>.json.
type Archiver struct {
	up  Uploader
	now func() time.Time
}

func New(up Uploader) *Archiver {
	return &Archiver{up: up, now: time.Now}
}

// Key is the object key a session is archived under. The date is the call's
// start date in UTC.
func Key(s *session.Session) string {
	day := s.CreatedAt
	if day.IsZero() {
		day = s.LastActivity
	}
	return fmt.Sprintf("calls/%s/%s.json", day.UTC().Format("2006-01-02"), s.ID)
}

func (a *Archiver) Archive(ctx context.Context, s *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record{ArchivedAt: a.now().UTC(), Session: s})
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := a.up.Upload(Key(s), "application/json", data); err != nil {
		return fmt.Errorf("archive session %s: %w", s.ID, err)
	}
	return nil
}
