package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/service"
	"github.com/sakif/payapp/internal/validation"
)

// maxSettingsBody bounds the whole multipart body: the image limit plus
// room for the text fields and multipart framing.
const maxSettingsBody = validation.MaxImageBytes + 1<<20

// ProfileHandler serves the creator pages: the owner's own profile, the
// public profile supporters visit, settings and search.
type ProfileHandler struct {
	profiles  *service.ProfileService
	donations *service.DonationService
	render    *Renderer
	logger    *slog.Logger
}

func NewProfileHandler(
	profiles *service.ProfileService,
	donations *service.DonationService,
	render *Renderer,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		donations: donations,
		render:    render,
		logger:    logger,
	}
}

type creatorPage struct {
	Creator *model.Creator
}

// HandleMyProfile shows the logged-in creator's profile.
//
// HTTP: GET /me (RequireLogin)
func (h *ProfileHandler) HandleMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	creator, err := h.profiles.GetCreatorByID(r.Context(), userID)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, "my_profile", PageData{
		Title: "My Profile",
		Data:  creatorPage{Creator: creator},
	})
}

// HandleCreatorProfile shows a creator's public page and counts the visit.
//
// HTTP: GET /profile/{username}
//
// Every successful render counts as one view, owner visits included. A
// failure to count is logged but still shows the page: a supporter should
// not lose the payment form because a counter write failed.
func (h *ProfileHandler) HandleCreatorProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	creator, err := h.profiles.GetCreator(r.Context(), username)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}

	if err := h.donations.RecordView(r.Context(), creator.User.ID); err != nil {
		h.logger.Warn("could not record page view",
			slog.String("userID", creator.User.ID),
			slog.String("error", err.Error()),
		)
	}

	h.render.Render(w, r, http.StatusOK, "creator_profile", PageData{
		Title: creator.User.Username + "'s Profile",
		Data:  creatorPage{Creator: creator},
	})
}

type settingsPage struct {
	Profile *model.Profile
}

// HandleSettingsForm shows the profile edit form pre-filled.
//
// HTTP: GET /settings (RequireLogin)
func (h *ProfileHandler) HandleSettingsForm(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	creator, err := h.profiles.GetCreatorByID(r.Context(), userID)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, "settings", PageData{
		Title: "Account Settings",
		Form: map[string]string{
			"payment_id": creator.Profile.PaymentID,
			"bio":        creator.Profile.Bio,
		},
		Data: settingsPage{Profile: &creator.Profile},
	})
}

// HandleSettings saves payment id, bio and avatar.
//
// HTTP: POST /settings (multipart: payment_id, bio, avatar, avatar_clear)
//
// BODY LIMIT:
// http.MaxBytesReader stops reading past maxSettingsBody, so a huge upload
// is cut off at the socket instead of being spooled to a temp file first.
func (h *ProfileHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxSettingsBody)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.renderSettings(w, r, userID, r.PostForm.Get("payment_id"), r.PostForm.Get("bio"),
				apperror.ValidationFailed("avatar", "Image file too large (max 5MB)."))
			return
		}
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	in := service.ProfileUpdate{
		PaymentID:    r.PostFormValue("payment_id"),
		Bio:          r.PostFormValue("bio"),
		RemoveAvatar: r.PostFormValue("avatar_clear") != "",
	}

	file, _, err := r.FormFile("avatar")
	switch {
	case err == nil:
		defer file.Close()
		in.Avatar = file
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no upload
	default:
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	if _, err := h.profiles.Update(r.Context(), userID, in); err != nil {
		h.renderSettings(w, r, userID, in.PaymentID, in.Bio, err)
		return
	}

	setFlash(w, "success", "Your profile has been updated.")
	http.Redirect(w, r, "/me", http.StatusSeeOther)
}

// renderSettings re-displays the form with the submitted values and errors.
func (h *ProfileHandler) renderSettings(w http.ResponseWriter, r *http.Request, userID, paymentID, bio string, formErr error) {
	if !apperror.IsKind(formErr) || errors.Is(formErr, apperror.ErrStorage) || errors.Is(formErr, apperror.ErrNotFound) {
		h.render.RenderError(w, r, formErr)
		return
	}

	creator, err := h.profiles.GetCreatorByID(r.Context(), userID)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}

	status, _ := statusFor(formErr)
	h.render.Render(w, r, status, "settings", PageData{
		Title:  "Account Settings",
		Flash:  &Flash{Kind: "error", Message: "Please correct the errors below."},
		Form:   map[string]string{"payment_id": paymentID, "bio": bio},
		Errors: fieldErrors(formErr),
		Data:   settingsPage{Profile: &creator.Profile},
	})
}

type findPage struct {
	Query    string
	Creators []model.Creator
}

// HandleFind searches creators by username or bio.
//
// HTTP: GET /find?q=paint
func (h *ProfileHandler) HandleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	creators, err := h.profiles.Search(r.Context(), q)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, "find", PageData{
		Title: "Find a Creator",
		Data:  findPage{Query: q, Creators: creators},
	})
}
