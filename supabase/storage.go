// Package supabase archives interview call recordings in Supabase storage.
package supabase

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Storage is the recording archive. Reviews reference objects in it by key.
type Storage struct {
	client *supabase.Client
	bucket string
}

func New(config Config) (*Storage, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Storage{
		client: client,
		bucket: config.Bucket,
	}, nil
}

func (s *Storage) Upload(key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload %s to supabase: %w", key, err)
	}
	return nil
}
