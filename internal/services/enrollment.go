package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/enrollment-backend/internal/clients/payments"
	"github.com/yungbote/enrollment-backend/internal/data/repos"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/observability"
	"github.com/yungbote/enrollment-backend/internal/platform/ctxutil"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
	"github.com/yungbote/enrollment-backend/internal/platform/logger"
	"github.com/yungbote/enrollment-backend/internal/pricing"
)

const (
	MaxStudentsPerEnrollment = 10
	MaxCoursesPerStudent     = 2
	minStudentAge            = 1
	maxStudentAge            = 99
)

// PaymentMode selects whether preferences are created at the provider or
// stubbed locally.
type PaymentMode string

const (
	PaymentModeMock     PaymentMode = "mock"
	PaymentModeMidtrans PaymentMode = "midtrans"
)

func ParsePaymentMode(raw string) PaymentMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PaymentModeMidtrans):
		return PaymentModeMidtrans
	default:
		return PaymentModeMock
	}
}

type GuardianRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

type StudentRequest struct {
	Name       string   `json:"name" binding:"required"`
	Age        int      `json:"age"`
	NationalID string   `json:"national_id"`
	CourseIDs  []string `json:"course_ids"`
	WorldID    string   `json:"world_id"`
}

type CreateEnrollmentRequest struct {
	Guardian GuardianRequest  `json:"guardian" binding:"required"`
	Kind     enrollment.Kind  `json:"kind" binding:"required,enrollment_kind"`
	Students []StudentRequest `json:"students" binding:"required,min=1,dive"`
	Origin   json.RawMessage  `json:"origin,omitempty"`
}

type StudentCredential struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	LoginHandle string    `json:"login_handle"`
	PIN         string    `json:"pin"`
}

type PaymentSummary struct {
	Amount       decimal.Decimal `json:"amount"`
	DiscountPct  decimal.Decimal `json:"discount_pct"`
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	PreferenceID string          `json:"preference_id"`
	CheckoutURL  string          `json:"checkout_url"`
}

type CreateEnrollmentResponse struct {
	EnrollmentID uuid.UUID           `json:"enrollment_id"`
	GuardianID   uuid.UUID           `json:"guardian_id"`
	Students     []StudentCredential `json:"students"`
	Payment      PaymentSummary      `json:"payment"`
}

type EnrolledStudent struct {
	StudentID       uuid.UUID `json:"student_id"`
	Name            string    `json:"name"`
	LoginHandle     string    `json:"login_handle"`
	AgeAtEnrollment int       `json:"age_at_enrollment"`

	Courses []*types.CourseSelection `json:"courses"`
	World   *types.WorldSelection    `json:"world,omitempty"`
}

// EnrollmentView is the post-commit read model clients poll after checkout.
type EnrollmentView struct {
	Enrollment *types.Enrollment     `json:"enrollment"`
	Payment    *types.Payment        `json:"payment"`
	Students   []EnrolledStudent     `json:"students"`
	History    []*types.StateHistory `json:"history"`
}

type EnrollmentService interface {
	CreateEnrollment(ctx context.Context, req CreateEnrollmentRequest) (*CreateEnrollmentResponse, error)
	GetEnrollment(ctx context.Context, id uuid.UUID) (*EnrollmentView, error)
}

type EnrollmentServiceConfig struct {
	Mode          PaymentMode
	PublicBaseURL string
	BackURLs      payments.BackURLs
}

// EnrollmentReadRepos are the repos the read model needs.
type EnrollmentReadRepos struct {
	Enrollments        repos.EnrollmentRepo
	Payments           repos.PaymentRepo
	History            repos.HistoryRepo
	EnrollmentStudents repos.EnrollmentStudentRepo
	Students           repos.StudentRepo
	Selections         repos.SelectionRepo
}

type enrollmentService struct {
	log       *logger.Logger
	cfg       EnrollmentServiceConfig
	schedule  pricing.Schedule
	aggregate domainagg.EnrollmentAggregate
	prefs     payments.PreferenceClient
	reads     EnrollmentReadRepos
	metrics   *observability.Metrics
	tracer    trace.Tracer
	newID     func() uuid.UUID
}

func NewEnrollmentService(
	baseLog *logger.Logger,
	cfg EnrollmentServiceConfig,
	schedule pricing.Schedule,
	aggregate domainagg.EnrollmentAggregate,
	prefs payments.PreferenceClient,
	reads EnrollmentReadRepos,
	metrics *observability.Metrics,
) EnrollmentService {
	if cfg.Mode == "" {
		cfg.Mode = PaymentModeMock
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	return &enrollmentService{
		log:       baseLog.With("service", "EnrollmentService"),
		cfg:       cfg,
		schedule:  schedule,
		aggregate: aggregate,
		prefs:     prefs,
		reads:     reads,
		metrics:   metrics,
		tracer:    observability.Tracer("enrollment-backend/services"),
		newID:     uuid.New,
	}
}

func (s *enrollmentService) CreateEnrollment(ctx context.Context, req CreateEnrollmentRequest) (*CreateEnrollmentResponse, error) {
	const op = "EnrollmentService.CreateEnrollment"

	ctx, span := s.tracer.Start(ctx, "enrollment.create", trace.WithAttributes(
		attribute.String("enrollment.kind", string(req.Kind)),
		attribute.Int("enrollment.students", len(req.Students)),
		attribute.Bool("payment.mock", s.cfg.Mode == PaymentModeMock),
	))
	defer span.End()

	resp, outcome, err := s.create(ctx, op, req)
	s.metrics.IncEnrollment(string(req.Kind), outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.String("enrollment.id", resp.EnrollmentID.String()))
	return resp, nil
}

func (s *enrollmentService) create(ctx context.Context, op string, req CreateEnrollmentRequest) (*CreateEnrollmentResponse, string, error) {
	if err := ValidateEnrollmentRequest(req); err != nil {
		return nil, "invalid", domainagg.Wrap(domainagg.CodeValidation, op, err)
	}

	enrollmentID := s.newID()
	in := s.price(enrollmentID, req)

	pref, err := s.createPreference(ctx, op, enrollmentID, req, in.FeePaid)
	if err != nil {
		return nil, "provider_failed", err
	}
	in.Payment = domainagg.PaymentInput{
		Amount:       in.FeePaid,
		PreferenceID: pref.ID,
		CheckoutURL:  pref.CheckoutURL,
	}

	res, err := s.aggregate.Create(ctx, in)
	if err != nil {
		// The preference exists at the provider but nothing local does.
		fields := append([]interface{}{
			"preference_id", pref.ID,
			"external_reference", enrollmentID.String(),
			"kind", string(req.Kind),
			"error", err,
		}, ctxutil.LogFields(ctx)...)
		s.log.Error("enrollment transaction rolled back after preference creation", fields...)
		return nil, "transaction_failed", transactionError(op, err)
	}

	out := &CreateEnrollmentResponse{
		EnrollmentID: res.EnrollmentID,
		GuardianID:   res.GuardianID,
		Students:     make([]StudentCredential, 0, len(res.Students)),
		Payment: PaymentSummary{
			Amount:       in.FeePaid,
			DiscountPct:  in.DiscountPct,
			MonthlyTotal: in.MonthlyTotal,
			PreferenceID: pref.ID,
			CheckoutURL:  pref.CheckoutURL,
		},
	}
	for _, st := range res.Students {
		out.Students = append(out.Students, StudentCredential{
			ID:          st.ID,
			Name:        st.Name,
			LoginHandle: st.LoginHandle,
			PIN:         st.PIN,
		})
	}
	s.log.Info("enrollment created",
		"enrollment_id", res.EnrollmentID,
		"guardian_id", res.GuardianID,
		"guardian_created", res.GuardianCreated,
		"students", len(res.Students),
		"preference_id", pref.ID,
	)
	return out, "created", nil
}

// transactionError keeps resource exhaustion visible and folds every other
// in-transaction failure into one internal error.
func transactionError(op string, err error) error {
	if domainagg.IsCode(err, domainagg.CodeResourceExhausted) {
		return err
	}
	return domainagg.NewError(domainagg.CodeInternal, op, "enrollment not saved; no changes were made", err)
}

func (s *enrollmentService) price(id uuid.UUID, req CreateEnrollmentRequest) domainagg.CreateEnrollmentInput {
	coursesPerStudent := make([]int, len(req.Students))
	students := make([]domainagg.StudentInput, len(req.Students))
	for i, st := range req.Students {
		coursesPerStudent[i] = len(st.CourseIDs)
		prices := s.schedule.CoursePrices(req.Kind, len(st.CourseIDs))
		in := domainagg.StudentInput{
			Name:       strings.TrimSpace(st.Name),
			Age:        st.Age,
			NationalID: strings.TrimSpace(st.NationalID),
		}
		for j, courseID := range st.CourseIDs {
			in.Courses = append(in.Courses, domainagg.PricedSelection{ID: strings.TrimSpace(courseID), MonthlyPrice: prices[j]})
		}
		if w := strings.TrimSpace(st.WorldID); w != "" {
			in.World = &domainagg.PricedSelection{ID: w, MonthlyPrice: s.schedule.WorldPrice(req.Kind)}
		}
		students[i] = in
	}
	total, pct := s.schedule.TotalWithDiscount(req.Kind, len(req.Students), coursesPerStudent)

	var origin json.RawMessage
	if len(req.Origin) > 0 && string(req.Origin) != "null" {
		origin = req.Origin
	}
	return domainagg.CreateEnrollmentInput{
		EnrollmentID: id,
		Guardian: domainagg.GuardianInput{
			Email:     req.Guardian.Email,
			Password:  req.Guardian.Password,
			FirstName: strings.TrimSpace(req.Guardian.FirstName),
			LastName:  strings.TrimSpace(req.Guardian.LastName),
			Phone:     strings.TrimSpace(req.Guardian.Phone),
		},
		Kind:         req.Kind,
		FeePaid:      s.schedule.FeeForKind(req.Kind),
		DiscountPct:  pct,
		MonthlyTotal: total,
		Origin:       origin,
		Students:     students,
	}
}

func (s *enrollmentService) createPreference(ctx context.Context, op string, id uuid.UUID, req CreateEnrollmentRequest, fee decimal.Decimal) (*payments.Preference, error) {
	start := time.Now()
	mode := string(s.cfg.Mode)

	if s.cfg.Mode == PaymentModeMock {
		s.metrics.ObservePreference(mode, "ok", time.Since(start))
		return &payments.Preference{
			ID:          "mock-pref-" + id.String(),
			CheckoutURL: s.cfg.PublicBaseURL + "/mock-checkout/" + id.String(),
		}, nil
	}
	if s.prefs == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "payment preference client not configured", nil)
	}

	pref, err := s.prefs.CreatePreference(ctx, payments.PreferenceRequest{
		Items: []payments.Item{{
			ID:        "enrollment-fee-" + string(req.Kind),
			Title:     fmt.Sprintf("Enrollment fee (%s)", req.Kind),
			Quantity:  1,
			UnitPrice: fee,
		}},
		Payer: payments.Payer{
			Email: strings.TrimSpace(req.Guardian.Email),
			Name:  strings.TrimSpace(req.Guardian.FirstName + " " + req.Guardian.LastName),
			Phone: strings.TrimSpace(req.Guardian.Phone),
		},
		ExternalReference: id.String(),
		BackURLs:          s.cfg.BackURLs,
	})
	if err == nil && (pref == nil || strings.TrimSpace(pref.ID) == "") {
		err = &payments.ProviderError{Provider: mode, Err: fmt.Errorf("empty preference")}
	}
	if err != nil {
		s.metrics.ObservePreference(mode, "error", time.Since(start))
		s.log.Warn("payment preference failed", "external_reference", id.String(), "error", err)
		return nil, domainagg.NewError(domainagg.CodePaymentProvider, op, "payment provider rejected the preference", err)
	}
	s.metrics.ObservePreference(mode, "ok", time.Since(start))
	return pref, nil
}

func (s *enrollmentService) GetEnrollment(ctx context.Context, id uuid.UUID) (*EnrollmentView, error) {
	const op = "EnrollmentService.GetEnrollment"
	dbc := dbctx.Context{Ctx: ctx}

	row, err := s.reads.Enrollments.GetByID(dbc, id)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if row == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "enrollment not found", nil)
	}
	view := &EnrollmentView{Enrollment: row, Students: []EnrolledStudent{}}

	if view.Payment, err = s.reads.Payments.GetByEnrollmentID(dbc, id); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if view.History, err = s.reads.History.ListByEnrollment(dbc, id); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}

	links, err := s.reads.EnrollmentStudents.ListByEnrollment(dbc, id)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	ids := make([]uuid.UUID, 0, len(links))
	linkIDs := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.StudentID)
		linkIDs = append(linkIDs, l.ID)
	}
	students, err := s.reads.Students.GetByIDs(dbc, ids)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	byID := make(map[uuid.UUID]*types.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}

	courses := map[uuid.UUID][]*types.CourseSelection{}
	worlds := map[uuid.UUID]*types.WorldSelection{}
	if s.reads.Selections != nil {
		cs, err := s.reads.Selections.ListCourses(dbc, linkIDs)
		if err != nil {
			return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
		}
		for _, c := range cs {
			courses[c.EnrollmentStudentID] = append(courses[c.EnrollmentStudentID], c)
		}
		ws, err := s.reads.Selections.ListWorlds(dbc, linkIDs)
		if err != nil {
			return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
		}
		for _, w := range ws {
			worlds[w.EnrollmentStudentID] = w
		}
	}

	for _, l := range links {
		es := EnrolledStudent{
			StudentID:       l.StudentID,
			AgeAtEnrollment: l.AgeAtEnrollment,
			Courses:         courses[l.ID],
			World:           worlds[l.ID],
		}
		if es.Courses == nil {
			es.Courses = []*types.CourseSelection{}
		}
		if st := byID[l.StudentID]; st != nil {
			es.Name = st.Name
			es.LoginHandle = st.LoginHandle
		}
		view.Students = append(view.Students, es)
	}
	return view, nil
}

// ValidateEnrollmentRequest checks the request shape without any I/O.
func ValidateEnrollmentRequest(req CreateEnrollmentRequest) error {
	email := strings.TrimSpace(req.Guardian.Email)
	if email == "" {
		return fmt.Errorf("guardian.email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("guardian.email is invalid")
	}
	if strings.TrimSpace(req.Guardian.FirstName) == "" {
		return fmt.Errorf("guardian.first_name is required")
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("kind %q is not one of colonia, escuela, ciclo_completo", req.Kind)
	}
	switch n := len(req.Students); {
	case n == 0:
		return fmt.Errorf("at least one student is required")
	case n > MaxStudentsPerEnrollment:
		return fmt.Errorf("at most %d students per enrollment, got %d", MaxStudentsPerEnrollment, n)
	}
	if len(req.Origin) > 0 && !isJSONObjectOrNull(req.Origin) {
		return fmt.Errorf("origin must be a JSON object")
	}

	for i, st := range req.Students {
		if err := validateStudent(req.Kind, st); err != nil {
			return fmt.Errorf("students[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStudent(kind enrollment.Kind, st StudentRequest) error {
	if strings.TrimSpace(st.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if st.Age < minStudentAge || st.Age > maxStudentAge {
		return fmt.Errorf("age must be between %d and %d", minStudentAge, maxStudentAge)
	}

	courses := len(st.CourseIDs)
	hasWorld := strings.TrimSpace(st.WorldID) != ""
	switch kind {
	case enrollment.KindColonia:
		if courses < 1 || courses > MaxCoursesPerStudent {
			return fmt.Errorf("colonia requires 1 to %d courses", MaxCoursesPerStudent)
		}
		if hasWorld {
			return fmt.Errorf("colonia does not accept a world selection")
		}
	case enrollment.KindEscuela:
		if courses != 0 {
			return fmt.Errorf("escuela does not accept course selections")
		}
		if !hasWorld {
			return fmt.Errorf("escuela requires a world selection")
		}
	case enrollment.KindCicloCompleto:
		if courses < 1 || courses > MaxCoursesPerStudent {
			return fmt.Errorf("ciclo_completo requires 1 to %d courses", MaxCoursesPerStudent)
		}
		if !hasWorld {
			return fmt.Errorf("ciclo_completo requires a world selection")
		}
	}

	seen := make(map[string]struct{}, courses)
	for _, c := range st.CourseIDs {
		c = strings.TrimSpace(c)
		if c == "" {
			return fmt.Errorf("course id must not be empty")
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("course %q selected twice", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

func isJSONObjectOrNull(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	if v == nil {
		return true
	}
	_, ok := v.(map[string]interface{})
	return ok
}
