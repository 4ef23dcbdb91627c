package service

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/model"
)

const (
	// ArchiveFilename is the name offered to clients downloading a pack
	ArchiveFilename = "sample_pack.zip"
	// ArchiveContentType is the media type of every archive
	ArchiveContentType = "application/zip"
	// ManifestFilename is the manifest entry inside every archive
	ManifestFilename = "metadata.json"
)

// ArchiveKey returns the storage key of a job's archive.
func ArchiveKey(jobID string) string {
	return fmt.Sprintf("archives/%s/%s", jobID, ArchiveFilename)
}

// Packager bundles staged samples into one stored archive and returns its location.
// Discard removes an archive that no job ended up referencing.
type Packager interface {
	Package(ctx context.Context, jobID string, samples []StagedSample) (string, error)
	Discard(ctx context.Context, location string) error
}

// PackageService zips staged samples with a manifest and uploads the archive
type PackageService struct {
	storage client.StorageClient
	staging *Staging
}

// NewPackageService creates a new package service
func NewPackageService(storage client.StorageClient, staging *Staging) *PackageService {
	return &PackageService{
		storage: storage,
		staging: staging,
	}
}

// Package writes the archive next to the staged samples, then uploads it.
// All failures are returned as *PackagingError.
func (s *PackageService) Package(ctx context.Context, jobID string, samples []StagedSample) (string, error) {
	if len(samples) == 0 {
		return "", &PackagingError{Err: errors.New("no samples to package")}
	}

	archivePath := filepath.Join(s.staging.JobDir(jobID), ArchiveFilename)
	f, err := os.Create(archivePath)
	if err != nil {
		return "", &PackagingError{Err: fmt.Errorf("failed to create archive: %w", err)}
	}
	defer f.Close()

	if err := writeArchive(f, samples); err != nil {
		return "", &PackagingError{Err: err}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", &PackagingError{Err: fmt.Errorf("failed to rewind archive: %w", err)}
	}

	location, err := s.storage.Upload(ctx, ArchiveKey(jobID), f, ArchiveContentType)
	if err != nil {
		return "", &PackagingError{Err: err}
	}

	return location, nil
}

// Discard deletes a stored archive
func (s *PackageService) Discard(ctx context.Context, location string) error {
	if err := s.storage.Delete(ctx, location); err != nil {
		return &PackagingError{Err: err}
	}
	return nil
}

func writeArchive(w io.Writer, samples []StagedSample) error {
	zw := zip.NewWriter(w)

	manifest := model.Manifest{Samples: make([]model.ManifestEntry, 0, len(samples))}
	for _, sample := range samples {
		if err := addFile(zw, sample.Filename, sample.Path); err != nil {
			return err
		}
		manifest.Samples = append(manifest.Samples, model.ManifestEntry{
			Filename:    sample.Filename,
			Description: sample.Description,
		})
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	mw, err := zw.Create(ManifestFilename)
	if err != nil {
		return fmt.Errorf("failed to add manifest: %w", err)
	}
	if _, err := mw.Write(manifestBytes); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
