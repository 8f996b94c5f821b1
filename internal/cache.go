package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheVersion changes whenever the cached transcript shape changes
const CacheVersion = "3"

// CacheManager caches replayed transcripts next to the event database
type CacheManager struct {
	cacheDir string
}

// CacheMetadata stores metadata about the cache
type CacheMetadata struct {
	DatabasePath string    `yaml:"database_path"`
	Revision     string    `yaml:"revision"`
	CacheVersion string    `yaml:"cache_version"`
	CreatedAt    time.Time `yaml:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// TranscriptIndexEntry represents a transcript entry in the index
type TranscriptIndexEntry struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title,omitempty"`
	CreatedAt    string `yaml:"created_at,omitempty"`
	UpdatedAt    string `yaml:"updated_at,omitempty"`
	MessageCount int    `yaml:"message_count"`
	Artifacts    int    `yaml:"artifacts"`
	Status       string `yaml:"status,omitempty"`
}

// TranscriptIndex represents the YAML index of all cached transcripts
type TranscriptIndex struct {
	Transcripts []TranscriptIndexEntry `yaml:"transcripts"`
	Metadata    CacheMetadata          `yaml:"metadata"`
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.cacheDir, 0755)
}

// GetCacheDir returns the cache directory path
func (cm *CacheManager) GetCacheDir() string {
	return cm.cacheDir
}

// GetIndexPath returns the path to the transcript index YAML file
func (cm *CacheManager) GetIndexPath() string {
	return filepath.Join(cm.cacheDir, "transcripts.yaml")
}

// GetTranscriptPath returns the path to a transcript's cache file
func (cm *CacheManager) GetTranscriptPath(id string) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("transcript_%s.json", id))
}

// IsCacheValid reports whether the index was built from dbPath at the given
// store revision (see EventStore.Revision)
func (cm *CacheManager) IsCacheValid(dbPath, revision string) (bool, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		return false, nil
	}
	if index.Metadata.DatabasePath != dbPath || index.Metadata.CacheVersion != CacheVersion {
		return false, nil
	}
	return revision != "" && index.Metadata.Revision == revision, nil
}

// LoadIndex loads the transcript index
func (cm *CacheManager) LoadIndex() (*TranscriptIndex, error) {
	data, err := os.ReadFile(cm.GetIndexPath())
	if err != nil {
		return nil, err
	}

	var index TranscriptIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &ParseError{Source: "cache", Key: cm.GetIndexPath(), Err: fmt.Errorf("failed to unmarshal index: %w", err)}
	}
	return &index, nil
}

// SaveIndex saves the transcript index
func (cm *CacheManager) SaveIndex(index *TranscriptIndex) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return os.WriteFile(cm.GetIndexPath(), data, 0644)
}

// SaveTranscript writes a single transcript file
func (cm *CacheManager) SaveTranscript(t *Transcript) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return os.WriteFile(cm.GetTranscriptPath(t.ID), data, 0644)
}

// LoadTranscript reads a single transcript file
func (cm *CacheManager) LoadTranscript(id string) (*Transcript, error) {
	data, err := os.ReadFile(cm.GetTranscriptPath(id))
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return &t, nil
}

// LoadAllTranscripts loads every indexed transcript, skipping unreadable files
func (cm *CacheManager) LoadAllTranscripts() ([]*Transcript, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		return nil, err
	}

	var transcripts []*Transcript
	for _, entry := range index.Transcripts {
		t, err := cm.LoadTranscript(entry.ID)
		if err != nil {
			LogDebug("Cached transcript %s unreadable: %v", entry.ID, err)
			continue
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, nil
}

func indexEntry(t *Transcript) TranscriptIndexEntry {
	return TranscriptIndexEntry{
		ID:           t.ID,
		Title:        t.Title,
		CreatedAt:    t.Metadata.CreatedAt,
		UpdatedAt:    t.Metadata.UpdatedAt,
		MessageCount: len(t.Messages),
		Artifacts:    len(t.Artifacts),
		Status:       string(t.Status),
	}
}

// SaveTranscripts replaces the cache with transcripts built from dbPath at revision
func (cm *CacheManager) SaveTranscripts(transcripts []*Transcript, dbPath, revision string) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}

	now := time.Now()
	index := TranscriptIndex{
		Transcripts: make([]TranscriptIndexEntry, 0, len(transcripts)),
		Metadata: CacheMetadata{
			DatabasePath: dbPath,
			Revision:     revision,
			CacheVersion: CacheVersion,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}

	for _, t := range transcripts {
		if err := cm.SaveTranscript(t); err != nil {
			LogWarn("Failed to save transcript %s: %v", t.ID, err)
			continue
		}
		index.Transcripts = append(index.Transcripts, indexEntry(t))
	}
	return cm.SaveIndex(&index)
}

// ClearCache removes the index and every transcript it lists
func (cm *CacheManager) ClearCache() error {
	if index, err := cm.LoadIndex(); err == nil {
		for _, entry := range index.Transcripts {
			_ = os.Remove(cm.GetTranscriptPath(entry.ID))
		}
	}
	if err := os.Remove(cm.GetIndexPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
