package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/directory"
)

// parseGroupFilter turns the wire blood_group field into a GroupFilter.
// Empty means no filter; a non-empty string that doesn't name one of the
// 8 groups is a caller error, not a silently widened query.
func parseGroupFilter(raw string) (blood.GroupFilter, error) {
	if raw == "" {
		return blood.NoFilter(), nil
	}
	g, ok := blood.ParseGroup(raw)
	if !ok {
		return blood.GroupFilter{}, fmt.Errorf("unknown blood group %q", raw)
	}
	return blood.Exact(g), nil
}

func recordDonationHandler(svc *blood.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordDonationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		donorID, err := uuid.Parse(req.DonorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_donor_id", "donor_id must be a valid UUID")
			return
		}
		facilityID, err := uuid.Parse(req.FacilityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", "facility_id must be a valid UUID")
			return
		}

		bags := make([]blood.BagSpec, 0, len(req.Bags))
		for _, b := range req.Bags {
			units := b.Units
			if units == 0 {
				units = 1
			}
			bags = append(bags, blood.BagSpec{
				VolumeML: b.VolumeML,
				BagType:  blood.BagType(b.BagType),
				Units:    units,
			})
		}

		donation, units, err := svc.RecordDonation(r.Context(), donorID, facilityID, bags)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, DonationResponse{
			DonationID: donation.ID,
			DonorID:    donation.DonorID,
			FacilityID: donation.FacilityID,
			DonatedAt:  donation.DonatedAt,
			UnitsMade:  toUnitResponses(units),
		})
	}
}

func recordTestHandler(svc *blood.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unit_id", "unit_id must be a valid UUID")
			return
		}

		var outcome blood.TestOutcome
		switch blood.TestOutcome(req.Outcome) {
		case blood.OutcomeSafe, blood.OutcomeUnsafe:
			outcome = blood.TestOutcome(req.Outcome)
		default:
			writeError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be SAFE or UNSAFE")
			return
		}

		group, ok := blood.ParseGroup(req.BloodGroup)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_blood_group", fmt.Sprintf("unknown blood group %q", req.BloodGroup))
			return
		}

		unit, err := svc.RecordTestResult(r.Context(), unitID, outcome, group)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toUnitResponse(*unit))
	}
}

func consumeUnitHandler(svc *blood.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UnitIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unit_id", "unit_id must be a valid UUID")
			return
		}

		unit, err := svc.MarkConsumed(r.Context(), unitID)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toUnitResponse(*unit))
	}
}

func discardUnitHandler(svc *blood.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DiscardUnitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unit_id", "unit_id must be a valid UUID")
			return
		}

		reason := blood.DisposalReason(req.Reason)
		switch reason {
		case blood.DisposalExpired, blood.DisposalUnsafe, blood.DisposalWasted:
		case "":
			reason = blood.DisposalWasted
		default:
			writeError(w, http.StatusBadRequest, "invalid_reason", "reason must be EXPIRED, UNSAFE, or WASTED")
			return
		}

		unit, err := svc.Dispose(r.Context(), unitID, reason)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toUnitResponse(*unit))
	}
}

func placeInInventoryHandler(svc *blood.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlaceInInventoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_unit_id", "unit_id must be a valid UUID")
			return
		}
		inventoryID, err := uuid.Parse(req.InventoryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_inventory_id", "inventory_id must be a valid UUID")
			return
		}

		unit, err := svc.PlaceInInventory(r.Context(), unitID, inventoryID)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toUnitResponse(*unit))
	}
}

func checkAvailabilityHandler(inv *blood.Inventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		inventoryID, err := uuid.Parse(req.InventoryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_inventory_id", "inventory_id must be a valid UUID")
			return
		}
		filter, err := parseGroupFilter(req.BloodGroup)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_blood_group", err.Error())
			return
		}

		avail, err := inv.CheckAvailability(r.Context(), inventoryID, filter, req.UnitsRequested)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		msg := fmt.Sprintf("%d unit(s) available", avail.UnitsAvailable)
		if req.UnitsRequested > 0 {
			if avail.Sufficient {
				msg = fmt.Sprintf("sufficient stock: %d unit(s) available for %d requested", avail.UnitsAvailable, req.UnitsRequested)
			} else {
				msg = fmt.Sprintf("insufficient stock: %d unit(s) available for %d requested", avail.UnitsAvailable, req.UnitsRequested)
			}
		}

		writeJSON(w, http.StatusOK, CheckAvailabilityResponse{
			AvailableUnits:  avail.UnitsAvailable,
			MatchingRecords: avail.RecordCount,
			UnitsRequested:  req.UnitsRequested,
			Sufficient:      avail.Sufficient,
			Message:         msg,
		})
	}
}

// unitListHandler serves the projection endpoints that differ only in
// which read they run.
func unitListHandler(list func(r *http.Request, inventoryID uuid.UUID, filter blood.GroupFilter) ([]blood.BloodUnit, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ListUnitsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		inventoryID, err := uuid.Parse(req.InventoryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_inventory_id", "inventory_id must be a valid UUID")
			return
		}
		filter, err := parseGroupFilter(req.BloodGroup)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_blood_group", err.Error())
			return
		}

		units, err := list(r, inventoryID, filter)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toUnitResponses(units))
	}
}

func groupBucketsHandler(inv *blood.Inventory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inventoryID, err := uuid.Parse(r.URL.Query().Get("inventoryId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_inventory_id", "inventoryId must be a valid UUID")
			return
		}

		buckets, err := inv.GroupBuckets(r.Context(), inventoryID)
		if err != nil {
			handleBloodError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, buckets)
	}
}

func handleBloodError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blood.ErrInvalidBagSpec):
		writeError(w, http.StatusBadRequest, "invalid_bag_spec", err.Error())
	case errors.Is(err, blood.ErrUnitNotFound):
		writeError(w, http.StatusNotFound, "unit_not_found", err.Error())
	case errors.Is(err, directory.ErrDonorNotFound):
		writeError(w, http.StatusNotFound, "donor_not_found", err.Error())
	case errors.Is(err, directory.ErrFacilityNotFound):
		writeError(w, http.StatusNotFound, "facility_not_found", err.Error())
	case errors.Is(err, blood.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, blood.ErrUnitTerminal):
		writeError(w, http.StatusConflict, "unit_terminal", err.Error())
	case errors.Is(err, blood.ErrUnitNotAvailable):
		writeError(w, http.StatusConflict, "unit_not_available", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
