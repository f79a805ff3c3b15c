package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/paylink"
	"github.com/sakif/payapp/internal/service"
)

// DonationHandler serves the supporter-facing QR endpoint and the creator's
// dashboard.
type DonationHandler struct {
	donations *service.DonationService
	profiles  *service.ProfileService
	render    *Renderer
	qrSize    int
	logger    *slog.Logger
}

func NewDonationHandler(
	donations *service.DonationService,
	profiles *service.ProfileService,
	render *Renderer,
	qrSize int,
	logger *slog.Logger,
) *DonationHandler {
	return &DonationHandler{
		donations: donations,
		profiles:  profiles,
		render:    render,
		qrSize:    qrSize,
		logger:    logger,
	}
}

// QRResponse is the JSON body of POST /qr-generate/{username}.
// On success UPIURL and QRCode are set; on failure only Error is.
type QRResponse struct {
	Success bool   `json:"success"`
	UPIURL  string `json:"upi_url,omitempty"`
	QRCode  string `json:"qr_code,omitempty"` // data:image/png;base64,...
	Error   string `json:"error,omitempty"`
}

// HandleQRGenerate records a donation attempt and returns the payment link
// with its QR code.
//
// HTTP: POST /qr-generate/{username} (form: amount)
//
// RESPONSES:
//
//	200 {"success":true,"upi_url":"upi://pay?pa=...","qr_code":"data:image/png;base64,..."}
//	400 {"success":false,"error":"Invalid amount."}
//	404 {"success":false,"error":"creator not found with id bob"}
//	422 {"success":false,"error":"Creator has no UPI ID."}
//	500 {"success":false,"error":"An internal error occurred"}
//
// No login is required: supporters are anonymous.
func (h *DonationHandler) HandleQRGenerate(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	result, err := h.donations.RecordAttempt(r.Context(), username, r.FormValue("amount"))
	if err != nil {
		logIfInternal(h.logger, r, err)
		writeQRError(w, err)
		return
	}

	// The attempt is already stored; a QR rendering failure still returns
	// the link so the supporter can tap it.
	qr, err := paylink.DataURI(result.Link, h.qrSize)
	if err != nil {
		h.logger.Error("QR rendering failed",
			slog.String("attemptID", result.Attempt.ID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, QRResponse{Success: true, UPIURL: result.Link, QRCode: qr})
}

func writeQRError(w http.ResponseWriter, err error) {
	status, _ := statusFor(err)
	writeJSON(w, status, QRResponse{Success: false, Error: publicMessage(err)})
}

// HandleResetAnalytics zeroes the caller's counters and deletes their attempts.
//
// HTTP: POST /reset-analytics (RequireLogin)
//
// The target creator is always the session's user; the request carries no
// id, so nobody can reset someone else's analytics.
func (h *DonationHandler) HandleResetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.donations.Reset(r.Context(), userID); err != nil {
		h.render.RenderError(w, r, err)
		return
	}

	setFlash(w, "success", "Your analytics have been reset.")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

type dashboardPage struct {
	Creator   *model.Creator
	Dashboard *model.Dashboard
}

// HandleDashboard is the creator's landing page after login.
//
// HTTP: GET /dashboard (RequireLogin)
func (h *DonationHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := h.load(r)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}
	h.render.Render(w, r, http.StatusOK, "dashboard", PageData{Title: "Dashboard", Data: page})
}

// HandleDashboardAPI is the JSON twin of HandleDashboard.
//
// HTTP: GET /api/dashboard (RequireAuth)
func (h *DonationHandler) HandleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	page, err := h.load(r)
	if err != nil {
		logIfInternal(h.logger, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page.Dashboard)
}

func (h *DonationHandler) load(r *http.Request) (*dashboardPage, error) {
	userID, _ := auth.UserIDFromContext(r.Context())

	creator, err := h.profiles.GetCreatorByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	dash, err := h.donations.Dashboard(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	return &dashboardPage{Creator: creator, Dashboard: dash}, nil
}
