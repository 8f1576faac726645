package assets

import (
	"time"

	"github.com/memohai/assetd/internal/storage"
)

// Visibility controls who may read an asset besides its owner and sharers.
type Visibility string

const (
	VisibilityPrivate  Visibility = "PRIVATE"
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityCensored Visibility = "CENSORED"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityPublic, VisibilityCensored:
		return true
	}
	return false
}

// SharingMode is the grant a share gives to a non-owner.
type SharingMode string

const (
	ModeRead            SharingMode = "READ"
	ModeReadWrite       SharingMode = "READ_WRITE"
	ModeReadWriteDelete SharingMode = "READ_WRITE_DELETE"
)

func (m SharingMode) rank() int {
	switch m {
	case ModeRead:
		return 1
	case ModeReadWrite:
		return 2
	case ModeReadWriteDelete:
		return 3
	}
	return 0
}

// Valid reports whether m is a known sharing mode.
func (m SharingMode) Valid() bool {
	return m.rank() > 0
}

// Includes reports whether m grants at least required. Grants are cumulative:
// READ_WRITE_DELETE includes READ_WRITE, which includes READ.
func (m SharingMode) Includes(required SharingMode) bool {
	return m.Valid() && m.rank() >= required.rank()
}

// Share grants a mode on one asset to one user.
type Share struct {
	SharerID string      `json:"sharerId"`
	Mode     SharingMode `json:"mode"`
}

// Asset is a stored file record. A primary asset points at its thumbnail via
// ThumbnailID; a thumbnail points back via OriginalID.
type Asset struct {
	ID          string              `json:"id"`
	OwnerID     string              `json:"ownerId"`
	Name        string              `json:"name,omitempty"`
	Size        int64               `json:"size"`
	Mime        string              `json:"mimeType"`
	Path        string              `json:"-"`
	Provider    storage.ProviderTag `json:"provider"`
	Visibility  Visibility          `json:"visibility"`
	Version     int                 `json:"version"`
	IsDeleted   bool                `json:"isDeleted"`
	Checksum    string              `json:"checksum,omitempty"`
	ThumbnailID string              `json:"thumbnailId,omitempty"`
	OriginalID  string              `json:"originalId,omitempty"`
	Shares      []Share             `json:"shares,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// IsThumbnail reports whether a was derived from another asset.
func (a Asset) IsThumbnail() bool {
	return a.OriginalID != ""
}

// Grants reports whether userID owns a or holds a share including required.
func (a Asset) Grants(userID string, required SharingMode) bool {
	if userID == "" {
		return false
	}
	if a.OwnerID == userID {
		return true
	}
	for _, s := range a.Shares {
		if s.SharerID == userID && s.Mode.Includes(required) {
			return true
		}
	}
	return false
}

// CreateRequest is the input for ingesting a new asset. Data is base64.
type CreateRequest struct {
	Name       string     `json:"name,omitempty"`
	Data       string     `json:"data"`
	Visibility Visibility `json:"visibility,omitempty"`
	Shares     []Share    `json:"shares,omitempty"`
}

// CreateResult identifies the stored asset and its thumbnail.
type CreateResult struct {
	ID          string `json:"id"`
	ThumbnailID string `json:"thumbnailId"`
}

// UpdateRequest changes metadata and optionally replaces content. Nil fields
// are left untouched.
type UpdateRequest struct {
	AssetID    string      `json:"assetId"`
	Name       *string     `json:"name,omitempty"`
	Data       *string     `json:"data,omitempty"`
	Visibility *Visibility `json:"visibility,omitempty"`
}

type DeleteRequest struct {
	AssetID string `json:"assetId"`
}

type DownloadRequest struct {
	AssetID string `json:"assetId"`
}

// DownloadResult carries the decrypted bytes.
type DownloadResult struct {
	Data  []byte
	Mime  string
	Asset Asset
}
