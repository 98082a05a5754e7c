// Package domain defines the persistence models for users, conversations,
// messages, and appointments. These types are mapped with GORM and form the
// core data layer of the clinic assistant application.
package domain

import (
	"time"
)

// Conversation status values. COMPLETED and APPOINTMENT_BOOKED are terminal:
// a conversation in either state is never reopened, a later inbound message
// starts a fresh conversation instead.
const (
	ConversationActive            = "ACTIVE"
	ConversationCompleted         = "COMPLETED"
	ConversationAppointmentBooked = "APPOINTMENT_BOOKED"
)

// Message roles.
const (
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
)

// Appointment status values. Appointments are created PENDING and moved to
// CONFIRMED or CANCELLED by clinic staff out of band.
const (
	AppointmentPending   = "PENDING"
	AppointmentConfirmed = "CONFIRMED"
	AppointmentCancelled = "CANCELLED"
)

// User is the identity anchor for one messaging-platform account. It is
// created on first contact and updated in place afterwards; profile fields
// are filled lazily and an already-set phone is never overwritten.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PlatformUserID: external messaging-platform identifier (unique).
//   - Username / FullName: optional profile data fetched from the platform.
//   - Phone: optional, backfilled from a booked appointment when absent.
type User struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	PlatformUserID string    `json:"platform_user_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_users_platform_id"`
	Username       *string   `json:"username,omitempty" gorm:"type:varchar(255)"`
	FullName       *string   `json:"full_name,omitempty" gorm:"type:varchar(255)"`
	Phone          *string   `json:"phone,omitempty"  gorm:"type:varchar(64)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation is one dialogue session owned by a user. At most one ACTIVE
// conversation may exist per user at any time; the partial unique index
// created in repo.AutoMigrate enforces this at the store level.
type Conversation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_conversations"`
	Status    string    `json:"status"     gorm:"type:varchar(32);not null;default:'ACTIVE';check:status IN ('ACTIVE','COMPLETED','APPOINTMENT_BOOKED')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// User is the owning account. Referenced, not owned: deleting a user is
	// an administrative operation outside this core.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single utterance within a conversation, authored either by
// the USER or the ASSISTANT. Messages are immutable once created.
//
// DedupKey carries the platform message id for inbound webhook messages and
// a synthesized unique key for assistant turns and web-chat turns. The unique
// index is the authoritative at-most-once guarantee: a second insert with the
// same key is reported as "already exists", not as an error.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role           string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('USER','ASSISTANT')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	DedupKey       string    `json:"-"               gorm:"type:varchar(128);not null;uniqueIndex:ux_messages_dedup_key"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Conversation is the parent session. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Appointment is a booking request extracted from a conversation. Creating
// one flips the owning conversation to APPOINTMENT_BOOKED and backfills the
// user's phone when it was previously unset.
type Appointment struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);not null;index:idx_user_appointments"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index"`
	PatientName    string    `json:"patient_name"    gorm:"type:varchar(255);not null"`
	Phone          string    `json:"phone"           gorm:"type:varchar(64);not null"`
	ServiceType    *string   `json:"service_type,omitempty"   gorm:"type:varchar(255)"`
	PreferredTime  *string   `json:"preferred_time,omitempty" gorm:"type:varchar(255)"`
	Notes          *string   `json:"notes,omitempty"          gorm:"type:text"`
	Status         string    `json:"status"          gorm:"type:varchar(32);not null;default:'PENDING';check:status IN ('PENDING','CONFIRMED','CANCELLED')"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// User and Conversation are referenced for reporting; the appointment
	// owns neither.
	User         User         `json:"-" gorm:"foreignKey:UserID;references:ID"`
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }
