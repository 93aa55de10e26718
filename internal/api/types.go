package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/slot"
	"github.com/hemolink/bloodbank/internal/transit"
)

// Slot & appointment payloads. These routes predate the blood routes and
// kept their camelCase field names for compatibility.

type GenerateSlotsRequest struct {
	StartTime              string `json:"startTime"`
	EndTime                string `json:"endTime"`
	AppointmentDuration    int    `json:"appointmentDuration"`
	RestTime               int    `json:"restTime"`
	DonorsPerSlot          int    `json:"donorsPerSlot"`
	MedicalEstablishmentID string `json:"medicalEstablishmentId"`
}

type SlotResponse struct {
	ID            uuid.UUID `json:"id"`
	FacilityID    uuid.UUID `json:"medicalEstablishmentId"`
	StartTime     string    `json:"startTime"`
	EndTime       string    `json:"endTime"`
	TokenNumber   int       `json:"tokenNumber"`
	DonorsPerSlot int       `json:"donorsPerSlot"`
	IsAvailable   bool      `json:"isAvailable"`
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ID:            s.ID,
		FacilityID:    s.FacilityID,
		StartTime:     s.StartClock(),
		EndTime:       s.EndClock(),
		TokenNumber:   s.Token,
		DonorsPerSlot: s.Capacity,
		IsAvailable:   s.Available,
	}
}

type CreateAppointmentRequest struct {
	DonorID                string `json:"donorId"`
	SlotID                 string `json:"slotId"`
	Date                   string `json:"date"` // YYYY-MM-DD
	MedicalEstablishmentID string `json:"medicalEstablishmentId"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	DonorID       uuid.UUID `json:"donorId"`
	SlotID        uuid.UUID `json:"slotId"`
	FacilityID    uuid.UUID `json:"medicalEstablishmentId"`
	ScheduledDate string    `json:"scheduledDate"`
	Status        string    `json:"status"`
}

func toAppointmentResponse(a slot.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		DonorID:       a.DonorID,
		SlotID:        a.SlotID,
		FacilityID:    a.FacilityID,
		ScheduledDate: a.ScheduledDate.Format("2006-01-02"),
		Status:        string(a.Status),
	}
}

// Blood unit payloads, snake_case like the inventory routes they serve.

type BagPayload struct {
	VolumeML float64 `json:"volume_ml"`
	BagType  string  `json:"bag_type"`
	Units    int     `json:"units"`
}

type RecordDonationRequest struct {
	DonorID    string       `json:"donor_id"`
	FacilityID string       `json:"facility_id"`
	Bags       []BagPayload `json:"bags"`
}

type UnitResponse struct {
	ID             uuid.UUID  `json:"id"`
	DonationID     uuid.UUID  `json:"donation_id"`
	Units          int        `json:"units"`
	VolumeML       float64    `json:"volume_ml"`
	BagType        string     `json:"bag_type"`
	CollectedAt    time.Time  `json:"collected_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Status         string     `json:"status"`
	Consumed       bool       `json:"consumed"`
	Disposed       bool       `json:"disposed"`
	DisposalReason *string    `json:"disposal_reason,omitempty"`
	InventoryID    *uuid.UUID `json:"inventory_id,omitempty"`
	BloodGroup     *string    `json:"blood_group,omitempty"`
}

func toUnitResponse(u blood.BloodUnit) UnitResponse {
	resp := UnitResponse{
		ID:          u.ID,
		DonationID:  u.DonationID,
		Units:       u.Units,
		VolumeML:    u.VolumeML,
		BagType:     string(u.BagType),
		CollectedAt: u.CollectedAt,
		ExpiresAt:   u.ExpiresAt,
		Status:      string(u.Status),
		Consumed:    u.Consumed,
		Disposed:    u.Disposed,
		InventoryID: u.InventoryID,
	}
	if u.DisposalReason != nil {
		s := string(*u.DisposalReason)
		resp.DisposalReason = &s
	}
	if u.Group != nil {
		s := string(*u.Group)
		resp.BloodGroup = &s
	}
	return resp
}

func toUnitResponses(units []blood.BloodUnit) []UnitResponse {
	out := make([]UnitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, toUnitResponse(u))
	}
	return out
}

type DonationResponse struct {
	DonationID uuid.UUID      `json:"donation_id"`
	DonorID    uuid.UUID      `json:"donor_id"`
	FacilityID uuid.UUID      `json:"facility_id"`
	DonatedAt  time.Time      `json:"donated_at"`
	UnitsMade  []UnitResponse `json:"units"`
}

type RecordTestRequest struct {
	UnitID     string `json:"unit_id"`
	Outcome    string `json:"outcome"`
	BloodGroup string `json:"blood_group"`
}

type UnitIDRequest struct {
	UnitID string `json:"unit_id"`
}

type DiscardUnitRequest struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

type PlaceInInventoryRequest struct {
	UnitID      string `json:"unit_id"`
	InventoryID string `json:"inventory_id"`
}

type CheckAvailabilityRequest struct {
	InventoryID    string `json:"inventory_id"`
	BloodGroup     string `json:"blood_group"`
	UnitsRequested int    `json:"number_of_units_requested"`
}

type CheckAvailabilityResponse struct {
	AvailableUnits  int    `json:"available_units"`
	MatchingRecords int    `json:"matching_records"`
	UnitsRequested  int    `json:"number_of_units_requested"`
	Sufficient      bool   `json:"sufficient"`
	Message         string `json:"message"`
}

type ListUnitsRequest struct {
	InventoryID string `json:"inventory_id"`
	BloodGroup  string `json:"blood_group,omitempty"`
}

// Transit & request payloads.

type DispatchTransitRequest struct {
	UnitID        string `json:"unitId"`
	DestinationID string `json:"destinationId"`
	Vehicle       string `json:"vehicle"`
	SourceBankID  string `json:"bloodBankId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}

type TransitResponse struct {
	ID            uuid.UUID  `json:"id"`
	UnitID        uuid.UUID  `json:"unitId"`
	SourceBankID  *uuid.UUID `json:"bloodBankId,omitempty"`
	DestinationID uuid.UUID  `json:"destinationId"`
	Vehicle       string     `json:"vehicle"`
	RequestID     *uuid.UUID `json:"requestId,omitempty"`
	DispatchedAt  time.Time  `json:"dispatchedAt"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	Status        string     `json:"status"`
}

func toTransitResponse(t transit.Transit) TransitResponse {
	return TransitResponse{
		ID:            t.ID,
		UnitID:        t.UnitID,
		SourceBankID:  t.SourceBankID,
		DestinationID: t.DestinationID,
		Vehicle:       t.Vehicle,
		RequestID:     t.RequestID,
		DispatchedAt:  t.DispatchedAt,
		DeliveredAt:   t.DeliveredAt,
		Status:        string(t.Status),
	}
}

func toTransitResponses(ts []transit.Transit) []TransitResponse {
	out := make([]TransitResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransitResponse(t))
	}
	return out
}

type CreateBloodRequestRequest struct {
	FacilityID    string         `json:"facilityId"`
	Urgency       string         `json:"urgency"`
	UnitsRequired map[string]int `json:"unitsRequired"`
}

type BloodRequestResponse struct {
	ID            uuid.UUID      `json:"id"`
	FacilityID    uuid.UUID      `json:"facilityId"`
	Urgency       string         `json:"urgency"`
	UnitsRequired map[string]int `json:"unitsRequired"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func toBloodRequestResponse(r transit.Request) BloodRequestResponse {
	units := make(map[string]int, len(r.Quantities))
	for g, n := range r.Quantities {
		units[string(g)] = n
	}
	return BloodRequestResponse{
		ID:            r.ID,
		FacilityID:    r.FacilityID,
		Urgency:       string(r.Urgency),
		UnitsRequired: units,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
	}
}
