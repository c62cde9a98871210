package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleAdvocate Role = "advocate"
	RoleClient   Role = "client"
	RoleStaff    Role = "staff"
)

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CasePending CaseStatus = "pending"
	CaseActive  CaseStatus = "active"
	CaseClosed  CaseStatus = "closed"
	CaseWon     CaseStatus = "won"
	CaseLost    CaseStatus = "lost"
	CaseSettled CaseStatus = "settled"
)

// CaseStatuses lists every status in display order.
var CaseStatuses = []CaseStatus{CasePending, CaseActive, CaseClosed, CaseWon, CaseLost, CaseSettled}

// Priority is shared by cases and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// TaskStatus values are capitalised; existing rows use this spelling.
type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "In Progress"
	TaskCompleted  TaskStatus = "Completed"
)

// EventType classifies calendar entries.
type EventType string

const (
	EventHearing      EventType = "hearing"
	EventMeeting      EventType = "meeting"
	EventConsultation EventType = "consultation"
	EventDeadline     EventType = "deadline"
	EventOther        EventType = "other"
)

// BillingStatus defines lifecycle states for an invoice.
type BillingStatus string

const (
	BillingPending   BillingStatus = "pending"
	BillingPaid      BillingStatus = "paid"
	BillingCancelled BillingStatus = "cancelled"
)

// AssignmentRole is the advocate's role on a case.
type AssignmentRole string

const (
	AssignLead      AssignmentRole = "lead"
	AssignAssociate AssignmentRole = "associate"
)

/* ================================ Base ================================== */

// Base carries the UUID primary key. IDs are generated client-side so the
// schema works the same on every supported driver.
type Base struct {
	ID uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

/* =============================== Entities =============================== */

// User represents an advocate, client or staff member.
type User struct {
	Base
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	ProfileImage string    `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdvocateProfile holds professional details, 1:1 with an advocate user.
type AdvocateProfile struct {
	Base
	UserID          uuid.UUID `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	LicenseNumber   string    `json:"license_number"`
	Specialization  string    `json:"specialization"`
	ExperienceYears int       `json:"experience_years"`
	HourlyRateCents int64     `json:"hourly_rate_cents"`
	Bio             string    `gorm:"type:text" json:"bio"`
	UpdatedAt       time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}

// ClientProfile holds client details, 1:1 with a client user.
type ClientProfile struct {
	Base
	UserID          uuid.UUID  `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	Occupation      string     `json:"occupation"`
	Company         string     `json:"company"`
	ReferenceSource string     `json:"reference_source"`
	Notes           string     `gorm:"type:text" json:"notes"`
	CreatedBy       *uuid.UUID `gorm:"type:varchar(36);index" json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}

// Case represents a legal matter handled for a client.
type Case struct {
	Base
	CaseNumber  string     `gorm:"type:varchar(40);uniqueIndex;not null" json:"case_number"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	CaseType    string     `gorm:"type:varchar(60);index" json:"case_type"`
	CourtName   string     `json:"court_name"`
	FilingDate  *time.Time `json:"filing_date,omitempty"`
	HearingDate *time.Time `json:"hearing_date,omitempty"`
	Status      CaseStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Priority    Priority   `gorm:"type:varchar(20);default:'medium'" json:"priority"`
	ClientID    uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"client_id"`
	CreatedBy   uuid.UUID  `gorm:"type:varchar(36);not null" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	Client      User             `gorm:"foreignKey:ClientID" json:"client"`
	Assignments []CaseAssignment `json:"assignments,omitempty"`
	Activities  []CaseActivity   `json:"activities,omitempty"`
}

// CaseAssignment links advocates to the cases they work on.
type CaseAssignment struct {
	Base
	CaseID     uuid.UUID      `gorm:"type:varchar(36);not null;index:idx_case_advocate,unique" json:"case_id"`
	AdvocateID uuid.UUID      `gorm:"type:varchar(36);not null;index:idx_case_advocate,unique;index" json:"advocate_id"`
	Role       AssignmentRole `gorm:"type:varchar(20);default:'associate'" json:"role"`
	AssignedAt time.Time      `json:"assigned_at"`

	Advocate User `gorm:"foreignKey:AdvocateID" json:"advocate"`
}

// CaseActivity is an append-only audit entry for a case.
type CaseActivity struct {
	Base
	CaseID      uuid.UUID      `gorm:"type:varchar(36);not null;index" json:"case_id"`
	ActionType  string         `gorm:"type:varchar(50);not null" json:"action_type"`
	Description string         `gorm:"type:text" json:"description"`
	PerformedBy uuid.UUID      `gorm:"type:varchar(36);not null" json:"performed_by"`
	Details     datatypes.JSON `json:"details,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// CaseIncome is money received against a case.
type CaseIncome struct {
	Base
	CaseID      uuid.UUID `gorm:"type:varchar(36);not null;index" json:"case_id"`
	AdvocateID  uuid.UUID `gorm:"type:varchar(36);not null;index" json:"advocate_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Category    string    `gorm:"type:varchar(60)" json:"category"`
	Description string    `json:"description"`
	Date        time.Time `gorm:"index" json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// CaseExpense is money spent on a case.
type CaseExpense struct {
	Base
	CaseID      uuid.UUID `gorm:"type:varchar(36);not null;index" json:"case_id"`
	AdvocateID  uuid.UUID `gorm:"type:varchar(36);not null;index" json:"advocate_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Category    string    `gorm:"type:varchar(60)" json:"category"`
	Description string    `json:"description"`
	Date        time.Time `gorm:"index" json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// Billing is an invoice issued to a client for a case.
type Billing struct {
	Base
	CaseID        uuid.UUID     `gorm:"type:varchar(36);not null;index" json:"case_id"`
	ClientID      uuid.UUID     `gorm:"type:varchar(36);not null;index" json:"client_id"`
	AdvocateID    uuid.UUID     `gorm:"type:varchar(36);not null;index" json:"advocate_id"`
	InvoiceNumber string        `gorm:"type:varchar(40);uniqueIndex;not null" json:"invoice_number"`
	AmountCents   int64         `gorm:"not null" json:"amount_cents"`
	Description   string        `json:"description"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	Status        BillingStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Event is a calendar entry (hearing, meeting, ...). Overlaps are allowed.
type Event struct {
	Base
	AdvocateID  uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"advocate_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Date        time.Time  `gorm:"index" json:"date"`
	StartTime   string     `gorm:"type:varchar(5)" json:"start_time"`
	EndTime     string     `gorm:"type:varchar(5)" json:"end_time"`
	Location    string     `json:"location"`
	EventType   EventType  `gorm:"type:varchar(20);default:'other'" json:"event_type"`
	CaseID      *uuid.UUID `gorm:"type:varchar(36);index" json:"case_id,omitempty"`
	ClientID    *uuid.UUID `gorm:"type:varchar(36)" json:"client_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Task is a to-do item, optionally tied to a case or client.
type Task struct {
	Base
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	DueDate     *time.Time `gorm:"index" json:"due_date,omitempty"`
	Priority    Priority   `gorm:"type:varchar(20);default:'medium'" json:"priority"`
	Status      TaskStatus `gorm:"type:varchar(20);default:'Pending';index" json:"status"`
	AssignedTo  uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"assigned_to"`
	CreatedBy   uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"created_by"`
	CaseID      *uuid.UUID `gorm:"type:varchar(36);index" json:"case_id,omitempty"`
	ClientID    *uuid.UUID `gorm:"type:varchar(36)" json:"client_id,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Document is a file attached to a case. FilePath is the storage key.
type Document struct {
	Base
	CaseID     uuid.UUID `gorm:"type:varchar(36);not null;index" json:"case_id"`
	Title      string    `gorm:"not null" json:"title"`
	FilePath   string    `gorm:"not null" json:"-"`
	FileName   string    `json:"file_name"`
	FileType   string    `gorm:"type:varchar(20)" json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadedBy uuid.UUID `gorm:"type:varchar(36);not null" json:"uploaded_by"`
	UploadDate time.Time `json:"upload_date"`

	Case Case `gorm:"foreignKey:CaseID" json:"-"`
}

// Message is an internal mail between two users. Each party trashes it
// independently; the row goes away once both have.
type Message struct {
	Base
	SenderID             uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"sender_id"`
	RecipientID          uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"recipient_id"`
	Subject              string     `gorm:"not null" json:"subject"`
	Body                 string     `gorm:"type:text" json:"body"`
	Attachment           string     `json:"-"`
	AttachmentName       string     `json:"attachment_name,omitempty"`
	IsRead               bool       `gorm:"not null;default:false" json:"is_read"`
	IsStarred            bool       `gorm:"not null;default:false" json:"is_starred"`
	IsDeletedBySender    bool       `gorm:"not null;default:false" json:"is_deleted_by_sender"`
	IsDeletedByRecipient bool       `gorm:"not null;default:false" json:"is_deleted_by_recipient"`
	ParentID             *uuid.UUID `gorm:"type:varchar(36);index" json:"parent_id,omitempty"`
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`

	Sender    User `gorm:"foreignKey:SenderID" json:"sender"`
	Recipient User `gorm:"foreignKey:RecipientID" json:"recipient"`
}

// Notification is a per-user alert raised by other flows.
type Notification struct {
	Base
	UserID    uuid.UUID      `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Title     string         `gorm:"not null" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	RelatedTo string         `gorm:"type:varchar(30)" json:"related_to,omitempty"`
	RelatedID *uuid.UUID     `gorm:"type:varchar(36)" json:"related_id,omitempty"`
	Data      datatypes.JSON `json:"data,omitempty"`
	IsRead    bool           `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// All lists every model for migrations.
func All() []any {
	return []any{
		&User{}, &AdvocateProfile{}, &ClientProfile{},
		&Case{}, &CaseAssignment{}, &CaseActivity{},
		&CaseIncome{}, &CaseExpense{}, &Billing{},
		&Event{}, &Task{}, &Document{}, &Message{}, &Notification{},
	}
}
