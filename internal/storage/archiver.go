package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// DerivedTypeDetectedImage is the derivation type of annotated copies
const DerivedTypeDetectedImage = "detected_image"

// ArchiveIndex remembers which archive content holds each image, so a
// re-processed job does not upload it twice
type ArchiveIndex interface {
	ArchivedContentID(ctx context.Context, id detection.ImageID) (string, error)
	SetArchivedContentID(ctx context.Context, id detection.ImageID, contentID string) error
}

// MemoryIndex is an ArchiveIndex for runs without a detection store
type MemoryIndex struct {
	mu  sync.Mutex
	ids map[string]string
}

// NewMemoryIndex creates an empty MemoryIndex
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{ids: make(map[string]string)}
}

func (m *MemoryIndex) ArchivedContentID(_ context.Context, id detection.ImageID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id.String()], nil
}

func (m *MemoryIndex) SetArchivedContentID(_ context.Context, id detection.ImageID, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id.String()] = contentID
	return nil
}

// Archiver copies the raw image, and the annotated copy when present,
// into a simple-content service. Each image is archived at most once.
type Archiver struct {
	service  simplecontent.Service
	index    ArchiveIndex
	ownerID  uuid.UUID
	tenantID uuid.UUID
}

// NewArchiver creates an archiver owned by ownerID/tenantID. A nil index
// is replaced by a MemoryIndex.
func NewArchiver(service simplecontent.Service, index ArchiveIndex, ownerID, tenantID string) (*Archiver, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner ID: %w", err)
	}
	tenant, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant ID: %w", err)
	}
	if index == nil {
		index = NewMemoryIndex()
	}
	return &Archiver{service: service, index: index, ownerID: owner, tenantID: tenant}, nil
}

// Name identifies the handler in logs and metrics
func (a *Archiver) Name() string { return "content-archive" }

// Handle uploads the images referenced by res, skipping what is already archived
func (a *Archiver) Handle(ctx context.Context, res *detection.Result) error {
	rawPath := res.Meta[detection.MetaRawImagePath]
	if rawPath == "" {
		return fmt.Errorf("result %s has no raw image path", res.ImageID)
	}

	contentID, err := a.rawContent(ctx, res, rawPath)
	if err != nil {
		return err
	}

	drawnPath := res.Meta[detection.MetaDrawnImageFile]
	if drawnPath == "" {
		return nil
	}

	archived, err := a.hasDerived(ctx, contentID)
	if err != nil {
		return err
	}
	if archived {
		return nil
	}

	drawn, err := os.Open(drawnPath)
	if err != nil {
		return fmt.Errorf("failed to open detected image: %w", err)
	}
	defer drawn.Close()

	return a.uploadDerived(ctx, contentID, res.ImageID, drawn)
}

// rawContent returns the content holding the raw image, uploading it on first use
func (a *Archiver) rawContent(ctx context.Context, res *detection.Result, rawPath string) (uuid.UUID, error) {
	known, err := a.index.ArchivedContentID(ctx, res.ImageID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up archive: %w", err)
	}
	if known != "" {
		id, err := uuid.Parse(known)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid archived content ID %q: %w", known, err)
		}
		return id, nil
	}

	raw, err := os.Open(rawPath)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to open raw image: %w", err)
	}
	defer raw.Close()

	content, err := a.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      a.ownerID,
		TenantID:     a.tenantID,
		Name:         res.ImageID.String(),
		DocumentType: "image/jpeg",
		Reader:       raw,
		FileName:     res.ImageID.FileName(),
		Tags:         append([]string{res.ImageID.Channel}, res.Labels()...),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upload raw image: %w", err)
	}

	if err := a.index.SetArchivedContentID(ctx, res.ImageID, content.ID.String()); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record archive: %w", err)
	}
	return content.ID, nil
}

// hasDerived reports whether parentID already has an annotated copy
func (a *Archiver) hasDerived(ctx context.Context, parentID uuid.UUID) (bool, error) {
	derived, err := a.service.ListDerivedContent(ctx,
		simplecontent.WithParentID(parentID),
		simplecontent.WithDerivationType(DerivedTypeDetectedImage),
	)
	if err != nil {
		return false, fmt.Errorf("failed to list derived content: %w", err)
	}
	for _, d := range derived {
		if d.DerivationType == DerivedTypeDetectedImage {
			return true, nil
		}
	}
	return false, nil
}

func (a *Archiver) uploadDerived(ctx context.Context, parentID uuid.UUID, id detection.ImageID, r io.Reader) error {
	variant := fmt.Sprintf("%s_v%d", DerivedTypeDetectedImage, 1)
	_, err := a.service.UploadDerivedContent(ctx, simplecontent.UploadDerivedContentRequest{
		ParentID:       parentID,
		DerivationType: DerivedTypeDetectedImage,
		Variant:        variant,
		Reader:         r,
		FileName:       id.FileName(),
		Tags:           []string{DerivedTypeDetectedImage, variant},
	})
	if err != nil {
		return fmt.Errorf("failed to upload detected image: %w", err)
	}
	return nil
}
