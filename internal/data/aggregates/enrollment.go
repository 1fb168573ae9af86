package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/enrollment-backend/internal/data/repos"
	types "github.com/yungbote/enrollment-backend/internal/domain"
	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
	"github.com/yungbote/enrollment-backend/internal/platform/credential"
	"github.com/yungbote/enrollment-backend/internal/platform/dbctx"
)

const (
	DefaultEnrollmentTxTimeout = 30 * time.Second
	pinScope                   = "enrollment_student.pin"
)

// TokenGenerator draws a token that exists reports as free.
type TokenGenerator interface {
	GenerateUnique(ctx context.Context, scope string, exists credential.ExistsFunc) (string, error)
}

// SecretHasher hashes guardian passwords and student PINs.
type SecretHasher interface {
	Hash(secret string) (string, error)
}

type EnrollmentAggregateDeps struct {
	Base BaseDeps

	Guardians          repos.GuardianRepo
	Enrollments        repos.EnrollmentRepo
	Students           repos.StudentRepo
	EnrollmentStudents repos.EnrollmentStudentRepo
	Selections         repos.SelectionRepo
	Payments           repos.PaymentRepo
	History            repos.HistoryRepo

	Tokens  TokenGenerator
	Hasher  SecretHasher
	Timeout time.Duration
}

type enrollmentAggregate struct {
	deps EnrollmentAggregateDeps
}

func NewEnrollmentAggregate(deps EnrollmentAggregateDeps) domainagg.EnrollmentAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Tokens == nil {
		deps.Tokens = credential.NewGenerator()
	}
	if deps.Hasher == nil {
		deps.Hasher = credential.Hasher{}
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultEnrollmentTxTimeout
	}
	return &enrollmentAggregate{deps: deps}
}

func (a *enrollmentAggregate) Contract() domainagg.Contract {
	return domainagg.EnrollmentAggregateContract
}

func (a *enrollmentAggregate) Create(ctx context.Context, in domainagg.CreateEnrollmentInput) (domainagg.CreateEnrollmentResult, error) {
	const op = "Enrollment.Enrollment.Create"
	var out domainagg.CreateEnrollmentResult

	if err := validateCreateInput(in); err != nil {
		return out, domainagg.Wrap(domainagg.CodeValidation, op, err)
	}
	if a.deps.Guardians == nil || a.deps.Enrollments == nil || a.deps.Students == nil ||
		a.deps.EnrollmentStudents == nil || a.deps.Selections == nil || a.deps.Payments == nil || a.deps.History == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "enrollment aggregate repos not configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, a.deps.Timeout)
	defer cancel()

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		// Reset so a retried body never leaks a previous attempt's result.
		out = domainagg.CreateEnrollmentResult{EnrollmentID: in.EnrollmentID}

		guardian, created, err := a.upsertGuardian(dbc, in.Guardian)
		if err != nil {
			return err
		}
		out.GuardianID = guardian.ID
		out.GuardianCreated = created

		row := &types.Enrollment{
			ID:           in.EnrollmentID,
			GuardianID:   guardian.ID,
			Kind:         in.Kind,
			State:        enrollment.StatePending,
			FeePaid:      in.FeePaid,
			DiscountPct:  in.DiscountPct,
			MonthlyTotal: in.MonthlyTotal,
		}
		if len(in.Origin) > 0 {
			row.Origin = datatypes.JSON(in.Origin)
		}
		if err := a.deps.Enrollments.Create(dbc, row); err != nil {
			return err
		}

		// PINs are drawn one student at a time so each uniqueness check sees
		// the PINs already assigned earlier in this transaction.
		var courses []*types.CourseSelection
		var worlds []*types.WorldSelection
		for i, s := range in.Students {
			cs, err := a.createStudent(dbc, guardian.ID, in.EnrollmentID, s)
			if err != nil {
				return fmt.Errorf("students[%d]: %w", i, err)
			}
			out.Students = append(out.Students, cs.result)
			for pos, c := range s.Courses {
				courses = append(courses, &types.CourseSelection{
					EnrollmentStudentID: cs.linkID,
					Position:            pos + 1,
					CourseID:            c.ID,
					MonthlyPrice:        c.MonthlyPrice,
				})
			}
			if s.World != nil {
				worlds = append(worlds, &types.WorldSelection{
					EnrollmentStudentID: cs.linkID,
					WorldID:             s.World.ID,
					MonthlyPrice:        s.World.MonthlyPrice,
				})
			}
		}

		g, gctx := errgroup.WithContext(dbc.Ctx)
		g.Go(func() error {
			return a.deps.Selections.CreateCourses(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, courses)
		})
		g.Go(func() error {
			return a.deps.Selections.CreateWorlds(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, worlds)
		})
		if err := g.Wait(); err != nil {
			return err
		}

		payment := &types.Payment{
			EnrollmentID: in.EnrollmentID,
			Amount:       in.Payment.Amount,
			PreferenceID: in.Payment.PreferenceID,
			CheckoutURL:  in.Payment.CheckoutURL,
			Status:       enrollment.PaymentPending,
		}
		if err := a.deps.Payments.Create(dbc, payment); err != nil {
			return err
		}
		out.PaymentID = payment.ID

		return a.deps.History.Append(dbc, &types.StateHistory{
			EnrollmentID:  in.EnrollmentID,
			PreviousState: enrollment.StateNone,
			NewState:      enrollment.StatePending,
			Reason:        enrollment.ReasonEnrollmentCreated,
			Actor:         enrollment.ActorSystem,
		})
	})
	if err != nil {
		return domainagg.CreateEnrollmentResult{}, err
	}
	return out, nil
}

func (a *enrollmentAggregate) upsertGuardian(dbc dbctx.Context, in domainagg.GuardianInput) (*types.Guardian, bool, error) {
	existing, err := a.deps.Guardians.GetByEmail(dbc, in.Email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	hash, err := a.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, false, err
	}
	g := &types.Guardian{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
	}
	if err := a.deps.Guardians.Create(dbc, g); err != nil {
		return nil, false, err
	}
	return g, true, nil
}

type createdStudent struct {
	linkID uuid.UUID
	result domainagg.CreatedStudent
}

func (a *enrollmentAggregate) createStudent(dbc dbctx.Context, guardianID, enrollmentID uuid.UUID, in domainagg.StudentInput) (createdStudent, error) {
	var out createdStudent
	pin, err := a.deps.Tokens.GenerateUnique(dbc.Ctx, pinScope, func(ctx context.Context, token string) (bool, error) {
		return a.deps.EnrollmentStudents.PINExists(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, token)
	})
	if err != nil {
		return out, err
	}
	pinHash, err := a.deps.Hasher.Hash(pin)
	if err != nil {
		return out, err
	}

	name := strings.TrimSpace(in.Name)
	student := &types.Student{
		GuardianID:    guardianID,
		Name:          name,
		Age:           in.Age,
		LoginHandle:   credential.LoginHandle(name),
		PINHash:       pinHash,
		MustChangePIN: true,
	}
	if err := a.deps.Students.Create(dbc, student); err != nil {
		return out, err
	}
	link := &types.EnrollmentStudent{
		EnrollmentID:    enrollmentID,
		StudentID:       student.ID,
		PIN:             pin,
		AgeAtEnrollment: in.Age,
		NationalID:      strings.TrimSpace(in.NationalID),
	}
	if err := a.deps.EnrollmentStudents.Create(dbc, link); err != nil {
		return out, err
	}

	out.linkID = link.ID
	out.result = domainagg.CreatedStudent{
		ID:          student.ID,
		Name:        name,
		LoginHandle: student.LoginHandle,
		PIN:         pin,
	}
	return out, nil
}

func validateCreateInput(in domainagg.CreateEnrollmentInput) error {
	switch {
	case in.EnrollmentID == uuid.Nil:
		return ValidationError("missing enrollment_id")
	case !in.Kind.Valid():
		return ValidationError(fmt.Sprintf("unknown kind %q", in.Kind))
	case strings.TrimSpace(in.Guardian.Email) == "":
		return ValidationError("missing guardian email")
	case len(in.Students) == 0:
		return ValidationError("at least one student is required")
	case strings.TrimSpace(in.Payment.PreferenceID) == "":
		return ValidationError("missing payment preference id")
	}
	for i, s := range in.Students {
		if strings.TrimSpace(s.Name) == "" {
			return ValidationError(fmt.Sprintf("students[%d]: missing name", i))
		}
	}
	return nil
}
