package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/server"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const readinessTimeout = 3 * time.Second

type CreateBookingRequest struct {
	ServiceName string `json:"service_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type SetStatusRequest struct {
	Status          types.BookingStatus `json:"status"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
}

type ScheduleResponse struct {
	BookingId string `json:"booking_id"`
	types.AutoCloseSchedule
}

func (s *BookingApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *BookingApp) writeError(w http.ResponseWriter, err error) {
	errResp := errorFor(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *BookingApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *BookingApp) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := map[string]string{"store": "ok"}
	ready := true
	if err := s.db.Ping(ctx); err != nil {
		results["store"] = err.Error()
		ready = false
	}
	for name, check := range s.checks {
		results[name] = "ok"
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			ready = false
		}
	}

	code := http.StatusOK
	if !ready {
		s.log.Warn().Interface("checks", results).Msg("not ready")
		code = http.StatusServiceUnavailable
	}
	s.writeJson(w, code, results)
}

// listBookings returns the caller's bookings, most recent first. Admins may
// list another subject's bookings with ?subject_id=.
func (s *BookingApp) listBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	subjectId := id.SubjectId
	if requested := r.URL.Query().Get(subjectIdParam); requested != "" && requested != id.SubjectId {
		if !id.IsAdmin() {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		subjectId = requested
	}

	bookings, err := s.db.ListBookingsBySubject(r.Context(), subjectId)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if bookings == nil {
		bookings = []types.Booking{}
	}

	s.writeJson(w, http.StatusOK, bookings)
}

func (s *BookingApp) createBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.Time = strings.TrimSpace(req.Time)
	if req.ServiceName == "" || req.Time == "" {
		errResp := NewBadRequestError()
		errResp.Message = "service_name and time are required"
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if _, err := s.calc.Compute(req.Date, req.Time, 0, 0); err != nil {
		errResp := NewBadRequestError()
		errResp.Message = "date must be YYYY-MM-DD"
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	bookingId, err := shortid.Generate()
	if err != nil {
		s.writeError(w, err)
		return
	}

	booking, err := s.db.CreateBooking(r.Context(), types.Booking{
		Id:          bookingId,
		SubjectId:   id.SubjectId,
		ServiceName: req.ServiceName,
		Date:        req.Date,
		Time:        req.Time,
		Status:      types.StatusPending,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().Str("booking_id", booking.Id).Str("subject_id", booking.SubjectId).Msg("booking created")
	s.broadcaster.NotifyNewBooking(booking)

	s.writeJson(w, http.StatusCreated, booking)
}

func (s *BookingApp) bookingSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	booking, err := s.db.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if booking.SubjectId != id.SubjectId && !id.IsAdmin() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	schedule, err := s.calc.ForBooking(booking)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, ScheduleResponse{BookingId: booking.Id, AutoCloseSchedule: schedule})
}

func (s *BookingApp) setBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ev, err := s.broadcaster.SetStatus(r.Context(), id, server.SetStatusCommand{
		BookingId:       r.PathValue("id"),
		Status:          req.Status,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, ev)
}

func (s *BookingApp) connectionStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, s.hub.ConnectionStats())
}

func (s *BookingApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if claimed := r.URL.Query().Get(subjectIdParam); claimed != "" && claimed != id.SubjectId {
		s.log.Warn().
			Str("subject_id", id.SubjectId).
			Str("claimed", claimed).
			Msg("refusing connection with mismatched subject")
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(id, conn, s.hub, s.log)
	if err := s.hub.Register(client); err != nil {
		s.log.Warn().Err(err).Msg("connection not admitted")
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
