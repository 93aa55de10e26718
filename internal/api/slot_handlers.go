package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/slot"
)

func generateSlotsHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		facilityID, err := uuid.Parse(req.MedicalEstablishmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_establishment_id", "medicalEstablishmentId must be a valid UUID")
			return
		}

		capacity := req.DonorsPerSlot
		if capacity == 0 {
			capacity = 1
		}

		slots, err := svc.Generate(r.Context(), slot.GenerateParams{
			FacilityID: facilityID,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
			Duration:   req.AppointmentDuration,
			Rest:       req.RestTime,
			Capacity:   capacity,
		})
		if err != nil {
			handleSlotError(w, err)
			return
		}

		out := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			out = append(out, toSlotResponse(s))
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func listSlotsHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facilityID, err := uuid.Parse(r.URL.Query().Get("establishmentId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_establishment_id", "establishmentId must be a valid UUID")
			return
		}

		slots, err := svc.ListAvailable(r.Context(), facilityID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		out := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			out = append(out, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createAppointmentHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		donorID, err := uuid.Parse(req.DonorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_donor_id", "donorId must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Book(r.Context(), slotID, donorID, date)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func appointmentTransitionHandler(svc *slot.Service, cancel bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var appt *slot.Appointment
		if cancel {
			appt, err = svc.Cancel(r.Context(), id)
		} else {
			appt, err = svc.Complete(r.Context(), id)
		}
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func handleSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrInvalidWindow),
		errors.Is(err, slot.ErrInvalidDuration),
		errors.Is(err, slot.ErrInvalidCapacity),
		errors.Is(err, slot.ErrWindowTooSmall):
		writeError(w, http.StatusBadRequest, "invalid_slot_window", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, directory.ErrDonorNotFound):
		writeError(w, http.StatusNotFound, "donor_not_found", err.Error())
	case errors.Is(err, directory.ErrFacilityNotFound):
		writeError(w, http.StatusNotFound, "establishment_not_found", err.Error())
	case errors.Is(err, slot.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, slot.ErrDonorNotEligible):
		writeError(w, http.StatusConflict, "donor_not_eligible", err.Error())
	case errors.Is(err, slot.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, slot.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, slot.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, "duplicate_booking", err.Error())
	case errors.Is(err, slot.ErrBookingContended):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, slot.ErrNotPending):
		writeError(w, http.StatusConflict, "appointment_not_pending", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
