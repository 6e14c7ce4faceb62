// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package worker exposes the worker-facing lease, progress and heartbeat
// API. Deny outcomes are part of the normal protocol, so they respond 200
// with ok=false rather than an error status.
package worker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/rtask/rtask/api/restutil"
	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/heartbeat"
)

type Worker struct {
	disp  *dispatch.Dispatcher
	beats *heartbeat.Monitor
}

func New(disp *dispatch.Dispatcher, beats *heartbeat.Monitor) *Worker {
	return &Worker{
		disp:  disp,
		beats: beats,
	}
}

func (wk *Worker) handleNextBucket(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	var body struct {
		TaskID string `json:"taskId"`
	}
	if err := restutil.ParseJSON(r.Body, &body); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}

	bucket, err := wk.disp.NextBucket(body.TaskID, session)
	if err != nil {
		if dispatch.IsErrNotFound(err) {
			return restutil.NotFound(err)
		}
		if msg := dispatch.DenyMessage(err); msg != "" {
			return restutil.WriteJSON(w, restutil.M{
				"ok":      false,
				"message": msg,
			})
		}
		return err
	}

	items := bucket.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	resp := restutil.M{
		"ok":          true,
		"bucketIndex": bucket.BucketIndex,
		"chunkData":   items,
		"rangeStart":  bucket.RangeStart,
		"rangeEnd":    bucket.RangeEnd,
		"bucketBytes": bucket.BucketBytes,
	}
	if bucket.Resume {
		resp["resume"] = true
	}
	return restutil.WriteJSON(w, resp)
}

func (wk *Worker) handleRecordProgress(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	var batch dispatch.ProgressBatch
	if err := restutil.ParseJSON(r.Body, &batch); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	// the session is the worker identity, whatever the body claims
	batch.WorkerID = session

	processed, total, err := wk.disp.RecordProgress(&batch)
	if err != nil {
		if dispatch.IsErrNotFound(err) {
			return restutil.NotFound(err)
		}
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"ok":        true,
		"processed": processed,
		"total":     total,
	})
}

func (wk *Worker) handleRecordBucket(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	var report dispatch.BucketReport
	if err := restutil.ParseJSON(r.Body, &report); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	report.WorkerID = session

	_, settlement, err := wk.disp.RecordBucket(&report)
	if err != nil {
		if dispatch.IsErrNotFound(err) {
			return restutil.NotFound(err)
		}
		return err
	}

	resp := restutil.M{"ok": true}
	if settlement != nil {
		resp["payout"] = settlement.WorkerTx
	}
	return restutil.WriteJSON(w, resp)
}

func (wk *Worker) handleHeartbeat(w http.ResponseWriter, r *http.Request) error {
	session := restutil.SessionID(w, r)
	at := wk.beats.Beat(session)
	return restutil.WriteJSON(w, restutil.M{
		"ok":         true,
		"serverTime": at.UTC(),
	})
}

func (wk *Worker) handleOnline(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]
	last, seen := wk.beats.LastSeen(id)
	if !seen {
		return restutil.WriteJSON(w, restutil.M{"online": false})
	}
	return restutil.WriteJSON(w, restutil.M{
		"online":        wk.beats.IsOnline(id),
		"lastHeartbeat": last.UTC(),
		"ageMs":         time.Since(last).Milliseconds(),
	})
}

func (wk *Worker) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/next-chunk").
		Methods(http.MethodPost).
		Name("worker_next_bucket").
		HandlerFunc(restutil.WrapHandlerFunc(wk.handleNextBucket))
	sub.Path("/record-progress").
		Methods(http.MethodPost).
		Name("worker_record_progress").
		HandlerFunc(restutil.WrapHandlerFunc(wk.handleRecordProgress))
	sub.Path("/record-chunk").
		Methods(http.MethodPost).
		Name("worker_record_bucket").
		HandlerFunc(restutil.WrapHandlerFunc(wk.handleRecordBucket))
	sub.Path("/heartbeat").
		Methods(http.MethodPost).
		Name("worker_heartbeat").
		HandlerFunc(restutil.WrapHandlerFunc(wk.handleHeartbeat))
	sub.Path("/online/{id}").
		Methods(http.MethodGet).
		Name("worker_online").
		HandlerFunc(restutil.WrapHandlerFunc(wk.handleOnline))
}
