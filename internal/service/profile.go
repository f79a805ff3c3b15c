package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/avatar"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
	"github.com/sakif/payapp/internal/validation"
)

// SearchLimit caps how many creators one search page returns.
const SearchLimit = 50

type ProfileService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	avatars  avatar.Store
	logger   *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	avatars avatar.Store,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:    users,
		profiles: profiles,
		avatars:  avatars,
		logger:   logger,
	}
}

// ProfileUpdate is the settings form. Avatar is nil when no file was
// uploaded; RemoveAvatar clears the current picture.
type ProfileUpdate struct {
	PaymentID    string
	Bio          string
	Avatar       io.Reader
	RemoveAvatar bool
}

// GetCreator loads the public page data for a handle.
func (s *ProfileService) GetCreator(ctx context.Context, username string) (*model.Creator, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, storageErr(s.logger, "loading creator", err)
	}
	return s.withProfile(ctx, user)
}

// GetCreatorByID loads the logged-in creator's own page data.
func (s *ProfileService) GetCreatorByID(ctx context.Context, userID string) (*model.Creator, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storageErr(s.logger, "loading creator", err)
	}
	return s.withProfile(ctx, user)
}

func (s *ProfileService) withProfile(ctx context.Context, user *model.User) (*model.Creator, error) {
	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, storageErr(s.logger, "loading profile", err)
	}
	return &model.Creator{User: *user, Profile: *profile}, nil
}

// Update applies the settings form to the caller's own profile.
//
// ORDER OF OPERATIONS:
//  1. Validate text fields and the image together, so the form shows every
//     problem at once.
//  2. Upload the new avatar under a fresh key.
//  3. Write the row. If that fails, delete the object we just uploaded.
//  4. Delete the previous avatar. A failure here only leaks an object, so
//     it is logged and the update still succeeds.
//
// The PaymentIDTaken pre-check gives a friendly message early; the UNIQUE
// constraint behind UpdateProfile still has the final say.
func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileUpdate) (*model.Profile, error) {
	errs := validation.Errors{}

	text, err := validation.Profile(validation.ProfileInput{PaymentID: in.PaymentID, Bio: in.Bio})
	if err != nil {
		mergeFields(errs, err)
	}

	var (
		imgData   []byte
		imgFormat string
	)
	if in.Avatar != nil {
		imgData, imgFormat, err = validation.Image(in.Avatar)
		if err != nil {
			mergeFields(errs, err)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	current, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, storageErr(s.logger, "loading profile", err)
	}

	if text.PaymentID != "" && text.PaymentID != current.PaymentID {
		taken, err := s.profiles.PaymentIDTaken(ctx, text.PaymentID, userID)
		if err != nil {
			return nil, storageErr(s.logger, "checking payment id", err)
		}
		if taken {
			return nil, apperror.DuplicateField("payment_id", "This UPI ID is already used by another creator.")
		}
	}

	updated := *current
	updated.PaymentID = text.PaymentID
	updated.Bio = text.Bio
	oldKey := current.AvatarKey

	if in.RemoveAvatar {
		updated.AvatarKey = ""
	}
	if imgData != nil {
		key := avatar.NewKey(validation.Extension(imgFormat))
		if err := s.avatars.Put(ctx, key, imgData, validation.ContentType(imgFormat)); err != nil {
			return nil, storageErr(s.logger, "uploading avatar", err)
		}
		updated.AvatarKey = key
	}

	if err := s.profiles.UpdateProfile(ctx, &updated); err != nil {
		if updated.AvatarKey != "" && updated.AvatarKey != oldKey {
			s.deleteAvatar(ctx, updated.AvatarKey)
		}
		return nil, storageErr(s.logger, "updating profile", err)
	}

	if oldKey != "" && oldKey != updated.AvatarKey {
		s.deleteAvatar(ctx, oldKey)
	}

	s.logger.Info("profile updated",
		slog.String("userID", userID),
		slog.Bool("hasPaymentID", updated.HasPaymentID()),
		slog.Bool("avatarChanged", oldKey != updated.AvatarKey),
	)
	return &updated, nil
}

// Search lists creators whose username or bio contains query.
func (s *ProfileService) Search(ctx context.Context, query string) ([]model.Creator, error) {
	creators, err := s.profiles.SearchCreators(ctx, strings.TrimSpace(query), repository.ListOptions{Limit: SearchLimit})
	if err != nil {
		return nil, storageErr(s.logger, "searching creators", err)
	}
	return creators, nil
}

// AvatarURL resolves a stored key for templates. Empty key gives "".
func (s *ProfileService) AvatarURL(key string) string {
	return s.avatars.URL(key)
}

func (s *ProfileService) deleteAvatar(ctx context.Context, key string) {
	if err := s.avatars.Delete(ctx, key); err != nil {
		s.logger.Warn("could not delete avatar",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// mergeFields copies field messages from a validation AppError into errs.
func mergeFields(errs validation.Errors, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		errs.Add("__all__", err.Error())
		return
	}
	for field, msg := range appErr.Fields {
		errs.Add(field, msg)
	}
}
