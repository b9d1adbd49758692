package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medbook/scheduling-core/internal/appointment"
	"github.com/medbook/scheduling-core/internal/schedule"
)

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, ok := pathUUID(w, r, "professionalID")
		if !ok {
			return
		}

		from, err := parseTimeParam(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "from must be RFC3339 or YYYY-MM-DD")
			return
		}
		to, err := parseTimeParam(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "to must be RFC3339 or YYYY-MM-DD")
			return
		}

		slots, err := svc.Availability(r.Context(), professionalID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AvailabilityResponse{
			ProfessionalID: professionalID,
			From:           from,
			To:             to,
			Slots:          make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start, End: s.End})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func reserveHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "could not parse JSON")
			return
		}

		professionalID, err := uuid.Parse(req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "professional_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Reserve(r.Context(), appointment.ReserveRequest{
			ProfessionalID: professionalID,
			PatientID:      patientID,
			Start:          req.Start,
			End:            req.End,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func transitionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "could not parse JSON")
			return
		}

		target, ok := appointment.ParseStatus(req.TargetStatus)
		if !ok {
			writeError(w, http.StatusBadRequest, "validation", "unknown target_status")
			return
		}

		appt, err := svc.Transition(r.Context(), id, req.Version, target)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "patient_id must be a valid UUID")
			return
		}

		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		appts, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func upsertTemplateHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, ok := pathUUID(w, r, "professionalID")
		if !ok {
			return
		}

		var req TemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "could not parse JSON")
			return
		}

		tpl, err := templateFromRequest(professionalID, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", err.Error())
			return
		}

		saved, err := svc.UpsertTemplate(r.Context(), tpl)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, TemplateResponse{
			ID:             saved.ID,
			ProfessionalID: saved.ProfessionalID,
			EffectiveFrom:  saved.EffectiveFrom,
		})
	}
}

func createExceptionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, ok := pathUUID(w, r, "professionalID")
		if !ok {
			return
		}

		var req ExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "could not parse JSON")
			return
		}

		created, err := svc.AddException(r.Context(), schedule.Exception{
			ProfessionalID: professionalID,
			Kind:           schedule.ExceptionKind(req.Kind),
			Start:          req.Start,
			End:            req.End,
			Reason:         req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ExceptionResponse{ID: created.ID, Kind: string(created.Kind)})
	}
}

// handleServiceError maps domain sentinels onto the error taxonomy exposed on
// the wire. CONFLICT and POLICY_VIOLATION are expected business outcomes;
// only the default branch is a service failure.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRange),
		errors.Is(err, schedule.ErrRangeTooLarge),
		errors.Is(err, schedule.ErrInvalidTimezone),
		errors.Is(err, schedule.ErrInvalidTemplate),
		errors.Is(err, schedule.ErrInvalidException),
		errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, appointment.ErrSlotNotCandidate),
		errors.Is(err, appointment.ErrIdempotencyMismatch):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, appointment.ErrTemplateNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken),
		errors.Is(err, appointment.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrStaleVersion):
		writeError(w, http.StatusConflict, "stale_version", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrCancellationWindow),
		errors.Is(err, appointment.ErrAppointmentInProgress):
		writeError(w, http.StatusUnprocessableEntity, "policy_violation", err.Error())
	case errors.Is(err, appointment.ErrProfessionalBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "busy", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "storage_failure", err.Error())
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		ProfessionalID: a.ProfessionalID,
		PatientID:      a.PatientID,
		Start:          a.Start,
		End:            a.End,
		Status:         string(a.Status),
		Version:        a.Version,
		ExpiresAt:      a.ExpiresAt,
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	var n int
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func templateFromRequest(professionalID uuid.UUID, req TemplateRequest) (schedule.Template, error) {
	var mask schedule.Weekmask
	for _, name := range req.Weekdays {
		day, err := parseWeekday(name)
		if err != nil {
			return schedule.Template{}, err
		}
		mask |= schedule.NewWeekmask(day)
	}

	dayStart, err := parseClock(req.DayStart)
	if err != nil {
		return schedule.Template{}, err
	}
	dayEnd, err := parseClock(req.DayEnd)
	if err != nil {
		return schedule.Template{}, err
	}

	return schedule.Template{
		ProfessionalID: professionalID,
		Weekdays:       mask,
		DayStartMin:    dayStart,
		DayEndMin:      dayEnd,
		SlotDuration:   time.Duration(req.SlotDurationMin) * time.Minute,
		Gap:            time.Duration(req.GapMin) * time.Minute,
		BufferBefore:   time.Duration(req.BufferBeforeMin) * time.Minute,
		BufferAfter:    time.Duration(req.BufferAfterMin) * time.Minute,
		Timezone:       req.Timezone,
	}, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	if d, ok := days[name]; ok {
		return d, nil
	}
	return 0, errors.New("unknown weekday " + name)
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, errors.New("clock times must be HH:MM")
	}
	return t.Hour()*60 + t.Minute(), nil
}
