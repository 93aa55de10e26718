package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/transit"
)

func dispatchTransitHandler(svc *transit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DispatchTransitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unit_id", "unitId must be a valid UUID")
			return
		}
		destinationID, err := uuid.Parse(req.DestinationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_destination_id", "destinationId must be a valid UUID")
			return
		}

		params := transit.DispatchParams{
			UnitID:        unitID,
			DestinationID: destinationID,
			Vehicle:       req.Vehicle,
		}
		if req.SourceBankID != "" {
			id, err := uuid.Parse(req.SourceBankID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_blood_bank_id", "bloodBankId must be a valid UUID")
				return
			}
			params.SourceBankID = &id
		}
		if req.RequestID != "" {
			id, err := uuid.Parse(req.RequestID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_id", "requestId must be a valid UUID")
				return
			}
			params.RequestID = &id
		}

		t, err := svc.Dispatch(r.Context(), params)
		if err != nil {
			handleTransitError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTransitResponse(*t))
	}
}

func transitTransitionHandler(svc *transit.Service, deliver bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_transit_id", "id must be a valid UUID")
			return
		}

		var t *transit.Transit
		if deliver {
			t, err = svc.Complete(r.Context(), id)
		} else {
			t, err = svc.Fail(r.Context(), id)
		}
		if err != nil {
			handleTransitError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTransitResponse(*t))
	}
}

func listTransitsHandler(svc *transit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bankParam := r.URL.Query().Get("bloodBankId")
		hospitalParam := r.URL.Query().Get("hospitalId")

		var (
			transits []transit.Transit
			err      error
		)
		switch {
		case bankParam != "":
			id, parseErr := uuid.Parse(bankParam)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_blood_bank_id", "bloodBankId must be a valid UUID")
				return
			}
			transits, err = svc.ListForBank(r.Context(), id)
		case hospitalParam != "":
			id, parseErr := uuid.Parse(hospitalParam)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospitalId must be a valid UUID")
				return
			}
			transits, err = svc.ListForHospital(r.Context(), id)
		default:
			writeError(w, http.StatusBadRequest, "missing_facility_id", "bloodBankId or hospitalId is required")
			return
		}
		if err != nil {
			handleTransitError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTransitResponses(transits))
	}
}

func createRequestHandler(svc *transit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBloodRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		facilityID, err := uuid.Parse(req.FacilityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", "facilityId must be a valid UUID")
			return
		}

		quantities := make(map[blood.Group]int, len(req.UnitsRequired))
		for raw, n := range req.UnitsRequired {
			g, ok := blood.ParseGroup(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_blood_group", fmt.Sprintf("unknown blood group %q", raw))
				return
			}
			quantities[g] += n
		}

		created, err := svc.CreateRequest(r.Context(), facilityID, transit.Urgency(req.Urgency), quantities)
		if err != nil {
			handleTransitError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBloodRequestResponse(*created))
	}
}

func getRequestHandler(svc *transit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		req, err := svc.GetRequest(r.Context(), id)
		if err != nil {
			handleTransitError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBloodRequestResponse(*req))
	}
}

func handleTransitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transit.ErrVehicleRequired),
		errors.Is(err, transit.ErrInvalidUrgency),
		errors.Is(err, transit.ErrInvalidQuantity),
		errors.Is(err, transit.ErrEmptyRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, blood.ErrUnitNotFound):
		writeError(w, http.StatusNotFound, "unit_not_found", err.Error())
	case errors.Is(err, directory.ErrFacilityNotFound):
		writeError(w, http.StatusNotFound, "facility_not_found", err.Error())
	case errors.Is(err, transit.ErrTransitNotFound):
		writeError(w, http.StatusNotFound, "transit_not_found", err.Error())
	case errors.Is(err, transit.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, transit.ErrUnitTerminal):
		writeError(w, http.StatusBadRequest, "unit_terminal", err.Error())
	case errors.Is(err, transit.ErrNotSafeForTransit):
		writeError(w, http.StatusBadRequest, "unit_not_safe", err.Error())
	case errors.Is(err, transit.ErrUnitExpired):
		writeError(w, http.StatusBadRequest, "unit_expired", err.Error())
	case errors.Is(err, transit.ErrTransitConflict):
		writeError(w, http.StatusConflict, "transit_conflict", err.Error())
	case errors.Is(err, transit.ErrDispatchContended):
		writeError(w, http.StatusConflict, "unit_being_dispatched", "unit is currently being dispatched, please retry shortly")
	case errors.Is(err, transit.ErrTransitNotActive):
		writeError(w, http.StatusConflict, "transit_not_active", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
