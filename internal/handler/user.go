package handler

import (
	"net/http"

	"github.com/sakif/foodgram/internal/service"
	"github.com/sakif/foodgram/internal/storage"
)

// UserHandler serves accounts, avatars and subscriptions.
type UserHandler struct {
	users   *service.UserService
	present presenter
}

func NewUserHandler(users *service.UserService, images storage.ImageStore, baseURL string) *UserHandler {
	return &UserHandler{
		users:   users,
		present: presenter{images: images, baseURL: baseURL},
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /api/users/
// Body: {"email", "username", "first_name", "last_name", "password"}
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	// The sign-up response has no subscription flag or avatar yet.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}

// HandleList pages through users with limit/offset.
//
// HTTP: GET /api/users/?limit=&offset=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := service.ClampLimit(queryInt(r, "limit", service.DefaultPageSize))
	offset := max(queryInt(r, "offset", 0), 0)

	page, err := h.users.List(r.Context(), viewerID(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]userResponse, len(page.Items))
	for i := range page.Items {
		results[i] = h.present.user(&page.Items[i])
	}
	next, prev := h.present.limitOffsetLinks(r, limit, offset, page.Count)
	writeJSON(w, http.StatusOK, newPage(results, page.Count, next, prev))
}

// HTTP: GET /api/users/{id}/
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Get(r.Context(), viewerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present.user(user))
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/users/me/
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	me := viewerID(r)
	user, err := h.users.Get(r.Context(), me, me)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present.user(user))
}

// HandleSetPassword changes the signed-in user's password.
//
// HTTP: POST /api/users/set_password/
// Body: {"current_password", "new_password"}
func (h *UserHandler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	var in service.SetPasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.SetPassword(r.Context(), viewerID(r), in); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetAvatar uploads a new avatar.
//
// HTTP: PUT /api/users/me/avatar/
// Body: {"avatar": "data:image/png;base64,..."}
func (h *UserHandler) HandleSetAvatar(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Avatar string `json:"avatar"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	key, err := h.users.SetAvatar(r.Context(), viewerID(r), in.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar": h.present.images.URL(key)})
}

// HTTP: DELETE /api/users/me/avatar/
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteAvatar(r.Context(), viewerID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubscribe follows a user.
//
// HTTP: POST /api/users/{id}/subscribe/?recipes_limit=
func (h *UserHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.users.Subscribe(r.Context(), viewerID(r), id, queryInt(r, "recipes_limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.present.subscription(sub))
}

// HTTP: DELETE /api/users/{id}/subscribe/
func (h *UserHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.Unsubscribe(r.Context(), viewerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubscriptions lists followed authors with a slice of their recipes.
//
// HTTP: GET /api/users/subscriptions/?page=&limit=&recipes_limit=
func (h *UserHandler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	pageNum := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", service.DefaultPageSize)

	page, err := h.users.Subscriptions(r.Context(), viewerID(r), pageNum, limit, queryInt(r, "recipes_limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]subscriptionResponse, len(page.Items))
	for i := range page.Items {
		results[i] = h.present.subscription(&page.Items[i])
	}
	next, prev := h.present.pageNumberLinks(r, pageNum, service.ClampLimit(limit), page.Count)
	writeJSON(w, http.StatusOK, newPage(results, page.Count, next, prev))
}
