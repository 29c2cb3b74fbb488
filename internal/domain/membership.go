package domain

import (
	"strings"
	"time"
)

type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusExpired  MembershipStatus = "expired"
	MembershipStatusInactive MembershipStatus = "inactive"
)

func ParseMembershipStatus(s string) MembershipStatus {
	switch status := MembershipStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case MembershipStatusActive, MembershipStatusExpired:
		return status
	default:
		return MembershipStatusInactive
	}
}

type Membership struct {
	CustomerID ID               `json:"userId"`
	Status     MembershipStatus `json:"status"`
	PlanName   string           `json:"planName"`
	StartDate  time.Time        `json:"startDate"`
	EndDate    time.Time        `json:"endDate"`
}
