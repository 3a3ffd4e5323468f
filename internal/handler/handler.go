package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/passhport/passhportd/internal/backup"
	"github.com/passhport/passhportd/internal/repository"
	"github.com/passhport/passhportd/internal/service"
	"github.com/sirupsen/logrus"
)

const maxImportSize = 1 << 20

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// ListUsers returns every email, one per line
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	emails, err := h.svc.ListEmails(r.Context())
	if err != nil {
		h.internalError(w, "list users", err)
		return
	}
	if len(emails) == 0 {
		text(w, http.StatusOK, "No user in database.\n")
		return
	}
	text(w, http.StatusOK, strings.Join(emails, "\n"))
}

// SearchUsers returns the emails containing the pattern
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	pattern := mux.Vars(r)["pattern"]
	emails, err := h.svc.SearchEmails(r.Context(), pattern)
	if err != nil {
		h.internalError(w, "search users", err)
		return
	}
	if len(emails) == 0 {
		text(w, http.StatusOK, fmt.Sprintf("No user matching the pattern %q found.\n", pattern))
		return
	}
	text(w, http.StatusOK, strings.Join(emails, "\n"))
}

// ShowUser returns every field of one user
func (h *Handler) ShowUser(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	user, err := h.svc.ShowUser(r.Context(), email)
	if errors.Is(err, service.ErrUserNotFound) {
		text(w, http.StatusExpectationFailed, notFound(email))
		return
	}
	if err != nil {
		h.internalError(w, "show user", err)
		return
	}
	text(w, http.StatusOK, user.String())
}

// CreateUser handles the create form
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	in := service.CreateUserInput{
		Email:    r.PostFormValue("email"),
		SSHKey:   r.PostFormValue("sshkey"),
		Comment:  r.PostFormValue("comment"),
		Username: r.PostFormValue("username"),
	}
	user, err := h.svc.CreateUser(r.Context(), in)
	if err != nil {
		status, msg := h.createError(in, err)
		text(w, status, msg)
		return
	}
	text(w, http.StatusOK, fmt.Sprintf("OK: %q -> created\n", user.Email))
}

// EditUser handles the edit form
func (h *Handler) EditUser(w http.ResponseWriter, r *http.Request) {
	in := service.EditUserInput{
		Email:       r.PostFormValue("email"),
		NewEmail:    r.PostFormValue("new_email"),
		NewSSHKey:   r.PostFormValue("new_sshkey"),
		NewComment:  r.PostFormValue("new_comment"),
		NewUsername: r.PostFormValue("new_username"),
	}
	if _, err := h.svc.EditUser(r.Context(), in); err != nil {
		status, msg := h.writeError(strings.TrimSpace(in.Email), "edit user", err)
		text(w, status, msg)
		return
	}
	text(w, http.StatusOK, fmt.Sprintf("OK: %q -> edited\n", strings.TrimSpace(in.Email)))
}

// DeleteUser removes the user named in the path
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	if err := h.svc.DeleteUser(r.Context(), email); err != nil {
		status, msg := h.writeError(email, "delete user", err)
		text(w, status, msg)
		return
	}
	text(w, http.StatusOK, fmt.Sprintf("OK: %q -> deleted\n", email))
}

// ExportUsers returns every user as an XML backup document
func (h *Handler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ExportUsers(r.Context())
	if err != nil {
		h.internalError(w, "export users", err)
		return
	}
	var buf bytes.Buffer
	if err := backup.Write(&buf, users); err != nil {
		h.internalError(w, "export users", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="passhport-users.xml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ImportUsers creates every user of an XML backup document
func (h *Handler) ImportUsers(w http.ResponseWriter, r *http.Request) {
	records, err := backup.Read(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		text(w, http.StatusExpectationFailed, fmt.Sprintf("ERROR: %v\n", err))
		return
	}

	inputs := make([]service.CreateUserInput, 0, len(records))
	for _, rec := range records {
		inputs = append(inputs, service.CreateUserInput{
			Email:    rec.Email,
			SSHKey:   rec.SSHKey,
			Comment:  rec.Comment,
			Username: rec.Username,
		})
	}

	var out strings.Builder
	for i, res := range h.svc.ImportUsers(r.Context(), inputs) {
		if res.Err != nil {
			_, msg := h.createError(inputs[i], res.Err)
			out.WriteString(strings.TrimRight(msg, " \n") + "\n")
			continue
		}
		fmt.Fprintf(&out, "OK: %q -> created\n", res.Email)
	}
	if len(records) == 0 {
		out.WriteString("No user in document.\n")
	}
	text(w, http.StatusOK, out.String())
}

// Health reports whether the database answers
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		h.log.WithError(err).Error("Health check failed")
		text(w, http.StatusServiceUnavailable, "ERROR: database unavailable\n")
		return
	}
	text(w, http.StatusOK, "OK\n")
}

func (h *Handler) createError(in service.CreateUserInput, err error) (int, string) {
	email := strings.TrimSpace(in.Email)
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return http.StatusExpectationFailed, "ERROR: The email and SSH key are required "
	case errors.Is(err, service.ErrEmailInUse):
		return http.StatusExpectationFailed, fmt.Sprintf("ERROR: The email %q is already used by another user ", email)
	case errors.Is(err, service.ErrSSHKeyInUse):
		return http.StatusExpectationFailed, fmt.Sprintf("ERROR: The SSH key %q is already used by another user ", strings.TrimSpace(in.SSHKey))
	default:
		return h.writeError(email, "create user", err)
	}
}

// writeError maps the errors shared by every write operation
func (h *Handler) writeError(email, op string, err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmailRequired):
		return http.StatusExpectationFailed, "ERROR: The email is required "
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusExpectationFailed, notFound(email)
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusExpectationFailed, fmt.Sprintf("ERROR: %v ", err)
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, fmt.Sprintf("ERROR: %q -> %v\n", email, err)
	default:
		h.log.WithError(err).Errorf("Failed to %s", op)
		return http.StatusInternalServerError, "ERROR: internal error\n"
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.WithError(err).Errorf("Failed to %s", op)
	text(w, http.StatusInternalServerError, "ERROR: internal error\n")
}

func notFound(email string) string {
	return fmt.Sprintf("ERROR: No user with the email %q in the database.\n", email)
}

func text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
