// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tasks exposes the customer-facing task lifecycle API.
package tasks

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/api/restutil"
	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/rtask"
)

// maxUploadBytes caps a create request, code archive and data file included.
const maxUploadBytes = 256 << 20

type Tasks struct {
	disp *dispatch.Dispatcher
	led  *ledger.Ledger
}

func New(disp *dispatch.Dispatcher, led *ledger.Ledger) *Tasks {
	return &Tasks{
		disp: disp,
		led:  led,
	}
}

func (t *Tasks) handleCreate(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	if _, err := t.led.Resolve(session); err != nil {
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	defer r.MultipartForm.RemoveAll()

	params := &dispatch.CreateParams{
		CreatorID:          session,
		Name:               r.FormValue("name"),
		CapabilityRequired: r.FormValue("capabilityRequired"),
	}
	var err error
	if params.MaxBuckets, err = formInt(r, "maxBuckets"); err != nil {
		return err
	}
	maxBucketBytes, err := formInt(r, "maxBucketBytes")
	if err != nil {
		return err
	}
	params.MaxBucketBytes = int64(maxBucketBytes)
	if params.MaxBillableBuckets, err = formInt(r, "maxBillableBuckets"); err != nil {
		return err
	}
	if params.PlatformFeePercent, err = formInt(r, "platformFeePercent"); err != nil {
		return err
	}
	if raw := r.FormValue("costPerBucket"); raw != "" {
		if params.CostPerBucket, err = decimal.NewFromString(raw); err != nil {
			return restutil.BadRequest(errors.WithMessage(err, "costPerBucket"))
		}
	}

	if code, header, err := r.FormFile("code"); err == nil {
		defer code.Close()
		params.Code = code
		params.CodeFilename = header.Filename
	} else if err != http.ErrMissingFile {
		return restutil.BadRequest(errors.WithMessage(err, "code"))
	}
	if data, _, err := r.FormFile("data"); err == nil {
		defer data.Close()
		if params.Items, err = io.ReadAll(data); err != nil {
			return restutil.BadRequest(errors.WithMessage(err, "data"))
		}
	} else if err != http.ErrMissingFile {
		return restutil.BadRequest(errors.WithMessage(err, "data"))
	}

	task, err := t.disp.Create(params)
	if err != nil {
		if dispatch.IsErrValidation(err) {
			return restutil.BadRequest(err)
		}
		return err
	}
	return restutil.WriteJSON(w, restutil.M{"task": task})
}

func (t *Tasks) handleList(w http.ResponseWriter, r *http.Request) error {
	status := rtask.TaskStatus(r.URL.Query().Get("status"))
	switch status {
	case "", rtask.TaskQueued, rtask.TaskProcessing, rtask.TaskCompleted, rtask.TaskFailed:
	default:
		return restutil.BadRequest(errors.New("status: invalid value"))
	}

	list, err := t.disp.List(status)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*rtask.Task{}
	}
	return restutil.WriteJSON(w, restutil.M{"tasks": list})
}

func (t *Tasks) handleGet(w http.ResponseWriter, r *http.Request) error {
	task, err := t.disp.Get(mux.Vars(r)["id"])
	if err != nil {
		return convertTaskError(err)
	}
	return restutil.WriteJSON(w, restutil.M{"task": task})
}

func (t *Tasks) handleClaim(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	task, err := t.disp.Claim(mux.Vars(r)["id"], session)
	if err != nil {
		return convertTaskError(err)
	}
	return restutil.WriteJSON(w, restutil.M{"task": task})
}

func (t *Tasks) handleDrop(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	task, err := t.disp.Drop(mux.Vars(r)["id"], session)
	if err != nil {
		return convertTaskError(err)
	}
	return restutil.WriteJSON(w, restutil.M{"task": task})
}

func (t *Tasks) handleRevoke(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	task, err := t.disp.Revoke(mux.Vars(r)["id"], session)
	if err != nil {
		return convertTaskError(err)
	}
	return restutil.WriteJSON(w, restutil.M{"task": task})
}

func (t *Tasks) handleReinvoke(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	task, err := t.disp.Reinvoke(mux.Vars(r)["id"], session)
	if err != nil {
		return convertTaskError(err)
	}
	return restutil.WriteJSON(w, restutil.M{"task": task})
}

func (t *Tasks) handleDelete(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	if err := t.disp.Delete(mux.Vars(r)["id"], session); err != nil {
		return convertTaskError(err)
	}
	return restutil.WriteJSON(w, restutil.M{"ok": true})
}

func (t *Tasks) handleResults(w http.ResponseWriter, r *http.Request) error {
	results, assignments, err := t.disp.Results(mux.Vars(r)["id"])
	if err != nil {
		return convertTaskError(err)
	}
	if results == nil {
		results = []*rtask.BucketResult{}
	}
	if assignments == nil {
		assignments = []*rtask.BucketAssignment{}
	}
	return restutil.WriteJSON(w, restutil.M{
		"results":     results,
		"assignments": assignments,
	})
}

// convertTaskError maps dispatcher errors onto HTTP statuses.
func convertTaskError(err error) error {
	switch {
	case dispatch.IsErrNotFound(err):
		return restutil.NotFound(err)
	case dispatch.IsErrNotOwner(err):
		return restutil.Forbidden(err)
	case dispatch.IsErrValidation(err),
		dispatch.IsErrRevoked(err),
		dispatch.IsErrWorkerOffline(err):
		return restutil.BadRequest(err)
	default:
		return err
	}
}

func formInt(r *http.Request, key string) (int, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, restutil.BadRequest(errors.WithMessage(err, key))
	}
	return n, nil
}

func (t *Tasks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodPost).
		Name("tasks_create").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleCreate))
	sub.Path("").
		Methods(http.MethodGet).
		Name("tasks_list").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleList))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		Name("tasks_get").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleGet))
	sub.Path("/{id}").
		Methods(http.MethodDelete).
		Name("tasks_delete").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleDelete))
	sub.Path("/{id}/claim").
		Methods(http.MethodPost).
		Name("tasks_claim").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleClaim))
	sub.Path("/{id}/drop").
		Methods(http.MethodPost).
		Name("tasks_drop").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleDrop))
	sub.Path("/{id}/revoke").
		Methods(http.MethodPost).
		Name("tasks_revoke").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleRevoke))
	sub.Path("/{id}/reinvoke").
		Methods(http.MethodPost).
		Name("tasks_reinvoke").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleReinvoke))
	sub.Path("/{id}/results").
		Methods(http.MethodGet).
		Name("tasks_results").
		HandlerFunc(restutil.WrapHandlerFunc(t.handleResults))
}
