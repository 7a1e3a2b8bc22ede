// ABOUTME: Contact and sync handlers
// ABOUTME: CRUD over the contact service plus the on-demand sync trigger
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
)

type listResponse struct {
	Contacts []models.Contact `json:"contacts"`
	Count    int              `json:"count"`
}

// listContacts returns local contacts and starts a background cycle so the
// next read reflects remote changes.
func (s *server) listContacts(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	contacts, err := s.contacts.List(r.Context(), tenant)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.contacts.SyncInBackground(tenant)

	writeJSON(w, http.StatusOK, listResponse{Contacts: contacts, Count: len(contacts)})
}

func (s *server) saveContact(w http.ResponseWriter, r *http.Request) {
	var in sync.ContactInput
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.contacts.Save(r.Context(), TenantFromContext(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (s *server) updateContact(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var patch sync.ContactPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.contacts.Update(r.Context(), TenantFromContext(r.Context()), id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := contactID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.contacts.Delete(r.Context(), TenantFromContext(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) deleteContactByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		s.fail(w, r, fmt.Errorf("%w: email query parameter is required", sync.ErrInvalidInput))
		return
	}

	result, err := s.contacts.DeleteByEmail(r.Context(), TenantFromContext(r.Context()), email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type syncOutcome struct {
	summary *sync.Summary
	err     error
}

// runSync waits for the cycle up to the sync timeout. On timeout the caller
// gets 504 and the cycle keeps running to completion under its lease.
func (s *server) runSync(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	done := make(chan syncOutcome, 1)

	go func() {
		summary, err := s.contacts.Sync(context.WithoutCancel(r.Context()), tenant)
		done <- syncOutcome{summary: summary, err: err}
	}()

	timer := time.NewTimer(s.syncTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			s.fail(w, r, out.err)
			return
		}
		writeJSON(w, http.StatusOK, out.summary)
	case <-timer.C:
		s.fail(w, r, fmt.Errorf("sync did not finish within %s: %w", s.syncTimeout, context.DeadlineExceeded))
	case <-r.Context().Done():
	}
}

func contactID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid contact id", sync.ErrInvalidInput)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", sync.ErrInvalidInput, err)
	}
	return nil
}
