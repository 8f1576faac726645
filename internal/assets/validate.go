package assets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/media"
)

const maxNameLength = 255

type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, ok := f[field]; !ok {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return errs.BadInputFields(f)
}

func validateAssetID(fields fieldErrors, id string) {
	if strings.TrimSpace(id) == "" {
		fields.add("assetId", "required")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		fields.add("assetId", "invalid uuid")
	}
}

func validateName(fields fieldErrors, name string) {
	switch {
	case strings.TrimSpace(name) == "":
		fields.add("asset.name", "must not be empty")
	case utf8.RuneCountInString(name) > maxNameLength:
		fields.add("asset.name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
}

// normalizeCreate validates req, filling in the default visibility and share
// mode.
func normalizeCreate(userID string, req CreateRequest) (CreateRequest, error) {
	fields := fieldErrors{}
	if req.Name != "" {
		validateName(fields, req.Name)
	}
	if strings.TrimSpace(req.Data) == "" {
		fields.add("asset.data", "required")
	}
	if req.Visibility == "" {
		req.Visibility = VisibilityPrivate
	} else if !req.Visibility.Valid() {
		fields.add("asset.visibility", "invalid visibility")
	}

	shares := make([]Share, 0, len(req.Shares))
	seen := make(map[string]struct{}, len(req.Shares))
	for i, s := range req.Shares {
		prefix := fmt.Sprintf("asset.shares.%d", i)
		s.SharerID = strings.TrimSpace(s.SharerID)
		if s.SharerID == "" {
			fields.add(prefix+".sharerId", "required")
			continue
		}
		if s.SharerID == userID {
			fields.add(prefix+".sharerId", "cannot share with owner")
			continue
		}
		if _, dup := seen[s.SharerID]; dup {
			fields.add(prefix+".sharerId", "duplicate sharer")
			continue
		}
		seen[s.SharerID] = struct{}{}
		if s.Mode == "" {
			s.Mode = ModeRead
		} else if !s.Mode.Valid() {
			fields.add(prefix+".mode", "invalid sharing mode")
			continue
		}
		shares = append(shares, s)
	}
	req.Shares = shares

	if err := fields.err(); err != nil {
		return CreateRequest{}, err
	}
	return req, nil
}

func validateUpdate(req UpdateRequest) error {
	fields := fieldErrors{}
	validateAssetID(fields, req.AssetID)
	if req.Name != nil {
		validateName(fields, *req.Name)
	}
	if req.Data != nil && strings.TrimSpace(*req.Data) == "" {
		fields.add("asset.data", "must not be empty")
	}
	if req.Visibility != nil && !req.Visibility.Valid() {
		fields.add("asset.visibility", "invalid visibility")
	}
	return fields.err()
}

func validateID(id string) error {
	fields := fieldErrors{}
	validateAssetID(fields, id)
	return fields.err()
}

// decodeArtifact turns base64 request data into a detected artifact.
func decodeArtifact(data string) (media.Artifact, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return media.Artifact{}, errs.BadInput("asset.data", "invalid base64")
	}
	art, err := media.Detect(raw)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedMediaType) {
			return media.Artifact{}, errs.BadInput("asset.data", media.ErrUnsupportedMediaType.Error())
		}
		return media.Artifact{}, errs.Internalf(err, "cannot detect file type")
	}
	return art, nil
}
