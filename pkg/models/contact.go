package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is one observed (email, phone) touchpoint. A primary heads a cluster;
// a secondary points at its primary through LinkedID.
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	Email          *string        `json:"email" db:"email"`
	PhoneNumber    *string        `json:"phoneNumber" db:"phone_number"`
	LinkedID       *int64         `json:"linkedId" db:"linked_id"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence" db:"link_precedence"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time     `json:"deletedAt" db:"deleted_at"`
}

func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// Older reports whether c precedes other in cluster order: creation time, then id.
func (c Contact) Older(other Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

type CreateContactRequest struct {
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
}

// UpdateContactRequest only carries the fields the merger rewrites.
type UpdateContactRequest struct {
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
}

// ConsolidatedContact is the merged view of one cluster.
type ConsolidatedContact struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

type IdentifyRequest struct {
	Email       *string      `json:"email" validate:"omitnil,email"`
	PhoneNumber *PhoneNumber `json:"phoneNumber" validate:"omitnil,min=1"`
}

// Phone returns the phone number as a plain optional string.
func (r IdentifyRequest) Phone() *string {
	if r.PhoneNumber == nil {
		return nil
	}
	s := string(*r.PhoneNumber)
	return &s
}

// PhoneNumber accepts a JSON string or number.
type PhoneNumber string

func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PhoneNumber(s)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or a number")
	}
	*p = PhoneNumber(n.String())
	return nil
}

type IdentifyResponse struct {
	Contact ConsolidatedContact `json:"contact"`
}

// StringPtr and Int64Ptr are convenience constructors for optional fields.
func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(i int64) *int64 {
	return &i
}
