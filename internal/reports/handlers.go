package reports

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/hints"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

/* ============================== Responses =============================== */

// Series is a chart-ready dataset.
type Series struct {
	Labels []string `json:"labels"`
	Values []int64  `json:"values"`
}

// Money carries cents plus a display string.
type Money struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

func money(c int64) Money { return Money{Cents: c, Formatted: utils.FormatCents(c)} }

type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Dashboard struct {
	Cases struct {
		Total   int64 `json:"total"`
		Pending int64 `json:"pending"`
		Active  int64 `json:"active"`
		Closed  int64 `json:"closed"`
	} `json:"cases"`
	Clients int64 `json:"clients"`
	Tasks   struct {
		Open     int64 `json:"open"`
		Overdue  int64 `json:"overdue"`
		DueToday int64 `json:"due_today"`
	} `json:"tasks"`
	UpcomingEvents      int64 `json:"upcoming_events"`
	UnreadMessages      int64 `json:"unread_messages"`
	UnreadNotifications int64 `json:"unread_notifications"`
	IncomeThisMonth     Money `json:"income_this_month"`
	ExpenseThisMonth    Money `json:"expense_this_month"`
	Outstanding         Money `json:"outstanding"`
}

type CasesReport struct {
	Range    Range  `json:"range"`
	Total    int64  `json:"total"`
	ByStatus Series `json:"by_status"`
	ByType   Series `json:"by_type"`
	ByMonth  Series `json:"by_month"`
}

type FinancialReport struct {
	Range              Range    `json:"range"`
	Income             Money    `json:"income"`
	Expense            Money    `json:"expense"`
	Net                Money    `json:"net"`
	Months             []string `json:"months"`
	IncomeByMonth      []int64  `json:"income_by_month"`
	ExpenseByMonth     []int64  `json:"expense_by_month"`
	ExpensesByCategory Series   `json:"expenses_by_category"`
	Billing            struct {
		Pending Money `json:"pending"`
		Paid    Money `json:"paid"`
	} `json:"billing"`
}

type TasksReport struct {
	Range          Range   `json:"range"`
	Total          int64   `json:"total"`
	Overdue        int64   `json:"overdue"`
	CompletionRate float64 `json:"completion_rate"`
	ByStatus       Series  `json:"by_status"`
	ByPriority     Series  `json:"by_priority"`
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// tagged returns a session whose SELECTs carry a /* report:name */ comment
// so aggregation queries are easy to find in database logs.
func (h *Handler) tagged(c *fiber.Ctx, name string) *gorm.DB {
	return h.db.WithContext(c.UserContext()).Clauses(hints.Comment("select", "report:"+name))
}

// visibleCases is the subquery of case ids the caller may see.
func (h *Handler) visibleCases(c *fiber.Ctx) *gorm.DB {
	return cases.Scope(h.db.Session(&gorm.Session{NewDB: true}).Model(&models.Case{}),
		auth.MustUserID(c), auth.MustRole(c)).Select("cases.id")
}

// myTasks restricts tasks to the caller's unless they are staff.
func myTasks(c *fiber.Ctx, q *gorm.DB) *gorm.DB {
	if auth.MustRole(c) == models.RoleStaff {
		return q
	}
	uid := auth.MustUserID(c)
	return q.Where("(created_by = ? OR assigned_to = ?)", uid, uid)
}

/* ============================== Dashboard =============================== */

// Dashboard godoc
// @Summary      Dashboard counters
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Dashboard
// @Router       /reports/dashboard [get]
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	uid, role := auth.MustUserID(c), auth.MustRole(c)
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)

	var out Dashboard
	caseQ := func() *gorm.DB {
		return cases.Scope(h.tagged(c, "dashboard").Model(&models.Case{}), uid, role)
	}
	closed := []models.CaseStatus{models.CaseClosed, models.CaseWon, models.CaseLost, models.CaseSettled}
	errs := []error{
		caseQ().Count(&out.Cases.Total).Error,
		caseQ().Where("cases.status = ?", models.CasePending).Count(&out.Cases.Pending).Error,
		caseQ().Where("cases.status = ?", models.CaseActive).Count(&out.Cases.Active).Error,
		caseQ().Where("cases.status IN ?", closed).Count(&out.Cases.Closed).Error,
	}

	if role == models.RoleStaff {
		errs = append(errs, h.tagged(c, "dashboard").Model(&models.User{}).
			Where("role = ?", models.RoleClient).Count(&out.Clients).Error)
	} else {
		errs = append(errs, caseQ().Distinct("cases.client_id").Count(&out.Clients).Error)
	}

	taskQ := func() *gorm.DB {
		return myTasks(c, h.tagged(c, "dashboard").Model(&models.Task{})).
			Where("status <> ?", models.TaskCompleted)
	}
	errs = append(errs,
		taskQ().Count(&out.Tasks.Open).Error,
		taskQ().Where("due_date < ?", today).Count(&out.Tasks.Overdue).Error,
		taskQ().Where("due_date >= ? AND due_date < ?", today, today.AddDate(0, 0, 1)).Count(&out.Tasks.DueToday).Error,
		h.tagged(c, "dashboard").Model(&models.Event{}).
			Where("advocate_id = ? AND date >= ? AND date < ?", uid, today, today.AddDate(0, 0, 7)).
			Count(&out.UpcomingEvents).Error,
		h.tagged(c, "dashboard").Model(&models.Message{}).
			Where("recipient_id = ? AND is_read = ? AND is_deleted_by_recipient = ?", uid, false, false).
			Count(&out.UnreadMessages).Error,
		h.tagged(c, "dashboard").Model(&models.Notification{}).
			Where("user_id = ? AND is_read = ?", uid, false).
			Count(&out.UnreadNotifications).Error,
	)

	var inc, exp, outstanding int64
	errs = append(errs,
		h.sum(c, "dashboard", &models.CaseIncome{}, "date >= ?", monthStart).Scan(&inc).Error,
		h.sum(c, "dashboard", &models.CaseExpense{}, "date >= ?", monthStart).Scan(&exp).Error,
		h.sum(c, "dashboard", &models.Billing{}, "status = ?", models.BillingPending).Scan(&outstanding).Error,
	)
	for _, err := range errs {
		if err != nil {
			return fiber.ErrInternalServerError
		}
	}
	out.IncomeThisMonth, out.ExpenseThisMonth, out.Outstanding = money(inc), money(exp), money(outstanding)
	return c.JSON(out)
}

// sum selects COALESCE(SUM(amount_cents), 0) over model rows on visible cases.
func (h *Handler) sum(c *fiber.Ctx, tag string, model any, cond string, args ...any) *gorm.DB {
	return h.tagged(c, tag).Model(model).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("case_id IN (?)", h.visibleCases(c)).
		Where(cond, args...)
}

/* ================================ Cases ================================= */

// Cases Report godoc
// @Summary      Cases by status, type and month
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from  query string false "YYYY-MM-DD (default: 11 months before this month)"
// @Param        to    query string false "YYYY-MM-DD (default: today)"
// @Success      200  {object}  CasesReport
// @Failure      400  {object}  models.ErrorResponse
// @Router       /reports/cases [get]
func (h *Handler) Cases(c *fiber.Ctx) error {
	rg, err := parseRange(c.Query("from"), c.Query("to"), time.Now())
	if err != nil {
		return err
	}
	uid, role := auth.MustUserID(c), auth.MustRole(c)
	base := func() *gorm.DB {
		return cases.Scope(h.tagged(c, "cases").Model(&models.Case{}), uid, role).
			Where("cases.created_at >= ? AND cases.created_at < ?", rg.from, rg.to)
	}

	out := CasesReport{Range: rg.view()}
	if err := base().Count(&out.Total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	byStatus, err := groupCount(base(), "cases.status")
	if err != nil {
		return fiber.ErrInternalServerError
	}
	out.ByStatus = fixedSeries(byStatus, caseStatusKeys())

	byType, err := groupCount(base(), "cases.case_type")
	if err != nil {
		return fiber.ErrInternalServerError
	}
	out.ByType = labelled(toSeries(byType))

	byMonth, err := groupCount(base(), monthExpr(h.db, "cases.created_at"))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	out.ByMonth = monthSeries(byMonth, rg.months())
	return c.JSON(out)
}

func caseStatusKeys() []string {
	keys := make([]string, len(models.CaseStatuses))
	for i, s := range models.CaseStatuses {
		keys[i] = string(s)
	}
	return keys
}

/* =============================== Finance ================================ */

// Financial Report godoc
// @Summary      Income, expenses and billing over a range
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from  query string false "YYYY-MM-DD (default: 11 months before this month)"
// @Param        to    query string false "YYYY-MM-DD (default: today)"
// @Success      200  {object}  FinancialReport
// @Failure      400  {object}  models.ErrorResponse
// @Router       /reports/financial [get]
func (h *Handler) Financial(c *fiber.Ctx) error {
	rg, err := parseRange(c.Query("from"), c.Query("to"), time.Now())
	if err != nil {
		return err
	}
	scoped := func(model any) *gorm.DB {
		return h.tagged(c, "financial").Model(model).
			Where("case_id IN (?)", h.visibleCases(c)).
			Where("date >= ? AND date < ?", rg.from, rg.to)
	}

	var inc, exp, pending, paid int64
	for _, step := range []struct {
		q   *gorm.DB
		dst *int64
	}{
		{scoped(&models.CaseIncome{}).Select("COALESCE(SUM(amount_cents), 0)"), &inc},
		{scoped(&models.CaseExpense{}).Select("COALESCE(SUM(amount_cents), 0)"), &exp},
		{h.sum(c, "financial", &models.Billing{}, "status = ? AND created_at >= ? AND created_at < ?", models.BillingPending, rg.from, rg.to), &pending},
		{h.sum(c, "financial", &models.Billing{}, "status = ? AND paid_at >= ? AND paid_at < ?", models.BillingPaid, rg.from, rg.to), &paid},
	} {
		if err := step.q.Scan(step.dst).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}

	month := monthExpr(h.db, "date")
	incByMonth, err := groupSum(scoped(&models.CaseIncome{}), month)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	expByMonth, err := groupSum(scoped(&models.CaseExpense{}), month)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	expByCat, err := groupSum(scoped(&models.CaseExpense{}), "category")
	if err != nil {
		return fiber.ErrInternalServerError
	}

	months := rg.months()
	incSeries, expSeries := monthSeries(incByMonth, months), monthSeries(expByMonth, months)
	out := FinancialReport{
		Range:              rg.view(),
		Income:             money(inc),
		Expense:            money(exp),
		Net:                money(inc - exp),
		Months:             incSeries.Labels,
		IncomeByMonth:      incSeries.Values,
		ExpenseByMonth:     expSeries.Values,
		ExpensesByCategory: labelled(toSeries(expByCat)),
	}
	out.Billing.Pending, out.Billing.Paid = money(pending), money(paid)
	return c.JSON(out)
}

/* ================================ Tasks ================================= */

// Tasks Report godoc
// @Summary      Tasks by status and priority
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from  query string false "YYYY-MM-DD (default: 11 months before this month)"
// @Param        to    query string false "YYYY-MM-DD (default: today)"
// @Success      200  {object}  TasksReport
// @Failure      400  {object}  models.ErrorResponse
// @Router       /reports/tasks [get]
func (h *Handler) Tasks(c *fiber.Ctx) error {
	now := time.Now()
	rg, err := parseRange(c.Query("from"), c.Query("to"), now)
	if err != nil {
		return err
	}
	base := func() *gorm.DB {
		return myTasks(c, h.tagged(c, "tasks").Model(&models.Task{})).
			Where("created_at >= ? AND created_at < ?", rg.from, rg.to)
	}

	out := TasksReport{Range: rg.view()}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if err := base().Count(&out.Total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if err := base().Where("status <> ? AND due_date < ?", models.TaskCompleted, today).
		Count(&out.Overdue).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	byStatus, err := groupCount(base(), "status")
	if err != nil {
		return fiber.ErrInternalServerError
	}
	out.ByStatus = fixedSeries(byStatus, []string{
		string(models.TaskPending), string(models.TaskInProgress), string(models.TaskCompleted),
	})
	byPriority, err := groupCount(base(), "priority")
	if err != nil {
		return fiber.ErrInternalServerError
	}
	out.ByPriority = fixedSeries(byPriority, []string{
		string(models.PriorityLow), string(models.PriorityMedium), string(models.PriorityHigh), string(models.PriorityUrgent),
	})

	if out.Total > 0 {
		done := out.ByStatus.Values[2]
		out.CompletionRate = float64(done*10000/out.Total) / 100
	}
	return c.JSON(out)
}
