package main

import (
	"errors"
	"net/http"
	"time"

	"portal/internal/domain/credentials"
	"portal/internal/domain/sharing"

	"github.com/go-chi/chi/v5"
)

type CreateSharePayload struct {
	Resource       string `json:"resource" validate:"required,max=255"`
	ExpiresInHours *int   `json:"expires_in_hours" validate:"omitempty,gt=0,lte=8760"`
}

type shareResponse struct {
	ID          string     `json:"id"`
	Resource    string     `json:"resource"`
	Token       string     `json:"token,omitempty"`
	URL         string     `json:"url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at"`
	AccessCount int64      `json:"access_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (app *application) toShareResponse(l *sharing.Link) (shareResponse, error) {
	publicID, err := app.shareIDs.Encode(l.ID)
	if err != nil {
		return shareResponse{}, err
	}
	return shareResponse{
		ID:          publicID,
		Resource:    l.Resource,
		ExpiresAt:   l.ExpiresAt,
		AccessCount: l.AccessCount,
		CreatedAt:   l.CreatedAt,
	}, nil
}

// createShareHandler issues a guest link. The plain token is only returned
// here.
func (app *application) createShareHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateSharePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	owner := getUserFromContext(r)

	token, err := app.tokens.ShareToken(0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	link := &sharing.Link{
		OwnerID:   owner.ID,
		Resource:  payload.Resource,
		TokenHash: credentials.HashToken(token),
	}
	if payload.ExpiresInHours != nil {
		exp := app.tokens.Now().Add(time.Duration(*payload.ExpiresInHours) * time.Hour)
		link.ExpiresAt = &exp
	}

	if err := app.store.Shares.Create(r.Context(), link); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	resp, err := app.toShareResponse(link)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	resp.Token = token
	resp.URL = app.config.frontendURL + "/shared/" + token

	if err := app.jsonResponse(w, http.StatusCreated, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) listSharesHandler(w http.ResponseWriter, r *http.Request) {
	owner := getUserFromContext(r)

	links, err := app.store.Shares.ListByOwner(r.Context(), owner.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	out := make([]shareResponse, 0, len(links))
	for i := range links {
		resp, err := app.toShareResponse(&links[i])
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		out = append(out, resp)
	}

	if err := app.jsonResponse(w, http.StatusOK, out); err != nil {
		app.internalServerError(w, r, err)
	}
}

// deleteShareHandler only deletes links owned by the caller; anything else
// is reported as not found.
func (app *application) deleteShareHandler(w http.ResponseWriter, r *http.Request) {
	owner := getUserFromContext(r)

	id, err := app.shareIDs.Decode(chi.URLParam(r, "shareID"))
	if err != nil {
		app.notFoundResponse(w, r, "Share link not found.", err)
		return
	}

	if err := app.store.Shares.Delete(r.Context(), id, owner.ID); err != nil {
		if errors.Is(err, sharing.ErrNotFound) {
			app.notFoundResponse(w, r, "Share link not found.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type resolvedShare struct {
	Resource    string     `json:"resource"`
	ExpiresAt   *time.Time `json:"expires_at"`
	AccessCount int64      `json:"access_count"`
}

// resolveShareHandler is the guest entry point. Unknown tokens are not_found,
// lapsed ones permission_denied.
func (app *application) resolveShareHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	link, err := app.store.Shares.GetByTokenHash(ctx, credentials.HashToken(token))
	if err != nil {
		if errors.Is(err, sharing.ErrNotFound) {
			app.notFoundResponse(w, r, "Share link not found.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if app.tokens.IsExpired(link.ExpiresAt) {
		app.forbiddenResponse(w, r, "This share link has expired.")
		return
	}

	if err := app.store.Shares.RecordAccess(ctx, link.ID); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, resolvedShare{
		Resource:    link.Resource,
		ExpiresAt:   link.ExpiresAt,
		AccessCount: link.AccessCount + 1,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}
