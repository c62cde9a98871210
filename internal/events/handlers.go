package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

type EventRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Date        string `json:"date" validate:"required,ymd"`
	StartTime   string `json:"start_time" validate:"omitempty,clock"`
	EndTime     string `json:"end_time" validate:"omitempty,clock"`
	Location    string `json:"location" validate:"max=200"`
	EventType   string `json:"event_type" validate:"omitempty,oneof=hearing meeting consultation deadline other"`
	CaseID      string `json:"case_id" validate:"omitempty,uuid"`
	ClientID    string `json:"client_id" validate:"omitempty,uuid"`
}

// CalendarItem is the shape calendar widgets consume.
type CalendarItem struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Start  string    `json:"start"`
	End    string    `json:"end,omitempty"`
	AllDay bool      `json:"allDay"`
	Type   string    `json:"type"`
	Color  string    `json:"color"`
}

var typeColors = map[models.EventType]string{
	models.EventHearing:      "#dc3545",
	models.EventMeeting:      "#0d6efd",
	models.EventConsultation: "#198754",
	models.EventDeadline:     "#fd7e14",
	models.EventOther:        "#6c757d",
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// bind validates in and builds the event fields. Linked cases must be
// visible to the advocate.
func (h *Handler) bind(c *fiber.Ctx, in *EventRequest, ev *models.Event) (bool, error) {
	if err := c.BodyParser(in); err != nil {
		return false, fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(*in); errs != nil {
		return false, validation.Respond(c, errs)
	}
	if in.StartTime != "" && in.EndTime != "" && in.EndTime < in.StartTime {
		return false, validation.Respond(c, map[string][]string{"end_time": {"Must not be before start_time"}})
	}

	date, _ := utils.ParseDate(in.Date)
	caseID, _ := utils.ParseOptionalUUID(in.CaseID)
	clientID, _ := utils.ParseOptionalUUID(in.ClientID)

	if caseID != nil {
		cs, err := cases.Load(c.UserContext(), h.db, *caseID, auth.MustUserID(c), auth.MustRole(c))
		if err != nil {
			return false, fiber.NewError(fiber.StatusUnprocessableEntity, "case not found")
		}
		if clientID == nil {
			clientID = &cs.ClientID
		}
	}

	ev.Title = strings.TrimSpace(in.Title)
	ev.Description = strings.TrimSpace(in.Description)
	ev.Date = *date
	ev.StartTime = in.StartTime
	ev.EndTime = in.EndTime
	ev.Location = strings.TrimSpace(in.Location)
	ev.EventType = models.EventOther
	if in.EventType != "" {
		ev.EventType = models.EventType(in.EventType)
	}
	ev.CaseID = caseID
	ev.ClientID = clientID
	return true, nil
}

func (h *Handler) loadOwned(c *fiber.Ctx) (models.Event, error) {
	var ev models.Event
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return ev, err
	}
	err = h.db.WithContext(c.UserContext()).
		Where("id = ? AND advocate_id = ?", id, auth.MustUserID(c)).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ev, fiber.ErrNotFound
	}
	if err != nil {
		return ev, fiber.ErrInternalServerError
	}
	return ev, nil
}

/* ================================ CRUD ================================== */

// Create Event godoc
// @Summary      Create calendar event
// @Description  Overlapping events are allowed
// @Tags         events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  EventRequest  true  "Event"
// @Success      201  {object}  models.Event
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /events [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in EventRequest
	ev := models.Event{AdvocateID: auth.MustUserID(c)}
	if ok, err := h.bind(c, &in, &ev); !ok {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Create(&ev).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create event")
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

// List Events godoc
// @Summary      List events in a date range
// @Tags         events
// @Security     BearerAuth
// @Produce      json
// @Param        from  query string false "YYYY-MM-DD (default: first day of this month)"
// @Param        to    query string false "YYYY-MM-DD (default: last day of this month)"
// @Param        type  query string false "event type"
// @Success      200  {array}  models.Event
// @Router       /events [get]
func (h *Handler) List(c *fiber.Ctx) error {
	from, to, err := rangeParams(c.Query("from"), c.Query("to"))
	if err != nil {
		return err
	}
	q := h.db.WithContext(c.UserContext()).
		Where("advocate_id = ? AND date >= ? AND date < ?", auth.MustUserID(c), from, to)
	if t := c.Query("type"); t != "" {
		q = q.Where("event_type = ?", t)
	}

	items := []models.Event{}
	if err := q.Order("date ASC, start_time ASC").Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(items)
}

// Calendar Feed godoc
// @Summary      Calendar feed
// @Description  Events in calendar-widget format
// @Tags         events
// @Security     BearerAuth
// @Produce      json
// @Param        start  query string false "YYYY-MM-DD"
// @Param        end    query string false "YYYY-MM-DD"
// @Success      200  {array}  CalendarItem
// @Router       /events/calendar [get]
func (h *Handler) Calendar(c *fiber.Ctx) error {
	// Widgets send full ISO timestamps; only the date part matters.
	from, to, err := rangeParams(firstN(c.Query("start"), 10), firstN(c.Query("end"), 10))
	if err != nil {
		return err
	}
	var evs []models.Event
	if err := h.db.WithContext(c.UserContext()).
		Where("advocate_id = ? AND date >= ? AND date < ?", auth.MustUserID(c), from, to).
		Order("date ASC, start_time ASC").
		Find(&evs).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	out := make([]CalendarItem, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toCalendar(ev))
	}
	return c.JSON(out)
}

func toCalendar(ev models.Event) CalendarItem {
	day := ev.Date.Format("2006-01-02")
	item := CalendarItem{
		ID:     ev.ID,
		Title:  ev.Title,
		Start:  day,
		AllDay: ev.StartTime == "",
		Type:   string(ev.EventType),
		Color:  typeColors[ev.EventType],
	}
	if ev.StartTime != "" {
		item.Start = day + "T" + ev.StartTime + ":00"
	}
	if ev.EndTime != "" {
		item.End = day + "T" + ev.EndTime + ":00"
	}
	if item.Color == "" {
		item.Color = typeColors[models.EventOther]
	}
	return item
}

// Event Detail godoc
// @Summary      Event detail
// @Tags         events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "event id (uuid)"
// @Success      200  {object}  models.Event
// @Failure      404  {object}  models.ErrorResponse
// @Router       /events/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	ev, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	return c.JSON(ev)
}

// Update Event godoc
// @Summary      Update event
// @Tags         events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string       true "event id (uuid)"
// @Param        payload  body EventRequest true "Event"
// @Success      200  {object}  models.Event
// @Failure      404  {object}  models.ErrorResponse
// @Router       /events/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	ev, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	var in EventRequest
	if ok, err := h.bind(c, &in, &ev); !ok {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Save(&ev).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update event")
	}
	return c.JSON(ev)
}

// Delete Event godoc
// @Summary      Delete event
// @Tags         events
// @Security     BearerAuth
// @Param        id   path string true "event id (uuid)"
// @Success      204
// @Failure      404  {object}  models.ErrorResponse
// @Router       /events/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	ev, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Delete(&ev).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete event")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

/* =============================== Helpers ================================ */

// rangeParams returns [from, to) with to exclusive. Defaults to the current month.
func rangeParams(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 1, 0)

	if fromStr != "" {
		d, err := utils.ParseDate(fromStr)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "invalid from date")
		}
		from = *d
	}
	if toStr != "" {
		d, err := utils.ParseDate(toStr)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "invalid to date")
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return from, to, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("empty range %s..%s", fromStr, toStr))
	}
	return from, to, nil
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
