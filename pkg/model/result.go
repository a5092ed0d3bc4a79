package model

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrCellNotFound is returned when a requested identity is absent from the directory.
	ErrCellNotFound = errors.New("cell not found")
	// ErrNoLocation is returned for cells without coordinates.
	ErrNoLocation = errors.New("cell has no location")
	// ErrNoCompliantCandidate means no PCI survived filtering, even after relaxation.
	ErrNoCompliantCandidate = errors.New("no compliant pci candidate")
)

// Reason is the user-visible assignment reason code.
type Reason string

const (
	ReasonStrictInheritance Reason = "strict_modulus_inheritance"
	ReasonFreePlanning      Reason = "free_planning_reuse_compliant"
	ReasonFallback          Reason = "no_compliant_pci_fallback"
	ReasonCellNotFound      Reason = "cell_not_found_no_pci"
	ReasonNoLocation        Reason = "no_location_fallback"
)

// DowngradeReason builds the reason for an assignment that only succeeded after
// relaxing the reuse distance from fromKm to toKm.
func DowngradeReason(fromKm, toKm float64) Reason {
	return Reason(string(ReasonFallback) + "_downgrade_" + formatKm(fromKm) + "km_to_" + formatKm(toKm) + "km")
}

func formatKm(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// IsFallback reports whether the reason marks a degraded assignment, either a
// relaxed threshold or the unverified placeholder.
func (r Reason) IsFallback() bool {
	return strings.HasPrefix(string(r), string(ReasonFallback))
}

// IsPlaceholder reports whether the PCI is the unverified last-resort value.
func (r Reason) IsPlaceholder() bool {
	return r == ReasonFallback
}

// Succeeded reports whether the reason carries an assigned PCI.
func (r Reason) Succeeded() bool {
	return r != ReasonCellNotFound && r != ReasonNoLocation
}

// ModMatch compares the original and assigned modulus.
type ModMatch string

const (
	ModMatchYes          ModMatch = "yes"
	ModMatchNo           ModMatch = "no"
	ModMatchIncomparable ModMatch = "incomparable"
)

// CompareMod classifies two optional modulus values.
func CompareMod(original, assigned *int) ModMatch {
	if original == nil || assigned == nil {
		return ModMatchIncomparable
	}
	if *original == *assigned {
		return ModMatchYes
	}
	return ModMatchNo
}

// VerifyStatus marks verified distances that are not numbers.
type VerifyStatus string

const (
	VerifyDistance         VerifyStatus = ""
	VerifyNoReusePCI       VerifyStatus = "no_reuse_pci"
	VerifyLocationMissing  VerifyStatus = "location_missing"
	VerifyAssignmentFailed VerifyStatus = "assignment_failed"
)

// VerifiedDistance is the post-run minimum reuse distance of an assigned cell.
type VerifiedDistance struct {
	Km     float64      `json:"km"`
	Status VerifyStatus `json:"status,omitempty"`
}

// IsFinite reports whether Km holds a real measurement.
func (v VerifiedDistance) IsFinite() bool {
	return v.Status == VerifyDistance && !math.IsInf(v.Km, 0)
}

func (v VerifiedDistance) String() string {
	if v.Status != VerifyDistance {
		return string(v.Status)
	}
	return strconv.FormatFloat(math.Round(v.Km*100)/100, 'f', 2, 64)
}

// Outcome is the orchestrator's answer for one cell.
type Outcome struct {
	PCI         *int
	Reason      Reason
	Frequency   *float64
	PredictedKm float64
	Candidates  int
}

// Result is the reported planning result of one requested cell.
type Result struct {
	Key         CellKey          `json:"key"`
	Name        string           `json:"name"`
	Network     NetworkType      `json:"network"`
	Latitude    *float64         `json:"latitude,omitempty"`
	Longitude   *float64         `json:"longitude,omitempty"`
	OriginalPCI *int             `json:"original_pci,omitempty"`
	AssignedPCI *int             `json:"assigned_pci,omitempty"`
	OriginalMod *int             `json:"original_mod,omitempty"`
	AssignedMod *int             `json:"assigned_mod,omitempty"`
	ModMatched  ModMatch         `json:"modulus_matched"`
	Frequency   *float64         `json:"frequency,omitempty"`
	Reason      Reason           `json:"assignment_reason"`
	PredictedKm float64          `json:"predicted_distance_km"`
	Verified    VerifiedDistance `json:"verified_min_reuse_distance"`
}

// ModOf returns pci mod m, or nil for an absent PCI.
func ModOf(pci *int, m int) *int {
	if pci == nil {
		return nil
	}
	v := *pci % m
	return &v
}
