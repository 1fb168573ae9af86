package pricing

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

// KindPricing holds the list prices of one enrollment kind.
type KindPricing struct {
	EnrollmentFee decimal.Decimal
	CourseMonthly decimal.Decimal
	WorldMonthly  decimal.Decimal
}

// SiblingTier applies Pct to the monthly total once an enrollment covers at
// least MinStudents students.
type SiblingTier struct {
	MinStudents int
	Pct         decimal.Decimal
}

// Schedule is the discount policy table. It is configuration, not code.
type Schedule struct {
	Kinds                   map[enrollment.Kind]KindPricing
	SecondCourseDiscountPct decimal.Decimal
	SiblingTiers            []SiblingTier
}

func DefaultSchedule() Schedule {
	return Schedule{
		Kinds: map[enrollment.Kind]KindPricing{
			enrollment.KindColonia: {
				EnrollmentFee: decimal.NewFromInt(15000),
				CourseMonthly: decimal.NewFromInt(25000),
			},
			enrollment.KindEscuela: {
				EnrollmentFee: decimal.NewFromInt(20000),
				WorldMonthly:  decimal.NewFromInt(40000),
			},
			enrollment.KindCicloCompleto: {
				EnrollmentFee: decimal.NewFromInt(30000),
				CourseMonthly: decimal.NewFromInt(25000),
				WorldMonthly:  decimal.NewFromInt(40000),
			},
		},
		SecondCourseDiscountPct: decimal.NewFromInt(20),
		SiblingTiers: []SiblingTier{
			{MinStudents: 2, Pct: decimal.NewFromInt(10)},
			{MinStudents: 3, Pct: decimal.NewFromInt(15)},
		},
	}
}

type scheduleFile struct {
	Kinds map[string]struct {
		EnrollmentFee float64 `yaml:"enrollment_fee"`
		CourseMonthly float64 `yaml:"course_monthly"`
		WorldMonthly  float64 `yaml:"world_monthly"`
	} `yaml:"kinds"`
	SecondCourseDiscountPct float64 `yaml:"second_course_discount_pct"`
	SiblingDiscounts        []struct {
		MinStudents int     `yaml:"min_students"`
		Pct         float64 `yaml:"pct"`
	} `yaml:"sibling_discounts"`
}

// LoadSchedule reads a YAML schedule. An empty path returns DefaultSchedule.
func LoadSchedule(path string) (Schedule, error) {
	if path == "" {
		return DefaultSchedule(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read pricing schedule: %w", err)
	}
	return ParseSchedule(raw)
}

func ParseSchedule(raw []byte) (Schedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Schedule{}, fmt.Errorf("parse pricing schedule: %w", err)
	}
	s := Schedule{
		Kinds:                   map[enrollment.Kind]KindPricing{},
		SecondCourseDiscountPct: money(f.SecondCourseDiscountPct),
	}
	for name, kp := range f.Kinds {
		kind := enrollment.Kind(name)
		if !kind.Valid() {
			return Schedule{}, fmt.Errorf("pricing schedule: unknown kind %q", name)
		}
		s.Kinds[kind] = KindPricing{
			EnrollmentFee: money(kp.EnrollmentFee),
			CourseMonthly: money(kp.CourseMonthly),
			WorldMonthly:  money(kp.WorldMonthly),
		}
	}
	for _, tier := range f.SiblingDiscounts {
		s.SiblingTiers = append(s.SiblingTiers, SiblingTier{MinStudents: tier.MinStudents, Pct: money(tier.Pct)})
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (s Schedule) Validate() error {
	hundred := decimal.NewFromInt(100)
	for _, kind := range []enrollment.Kind{enrollment.KindColonia, enrollment.KindEscuela, enrollment.KindCicloCompleto} {
		kp, ok := s.Kinds[kind]
		if !ok {
			return fmt.Errorf("pricing schedule: missing kind %q", kind)
		}
		if kp.EnrollmentFee.IsNegative() || kp.CourseMonthly.IsNegative() || kp.WorldMonthly.IsNegative() {
			return fmt.Errorf("pricing schedule: negative amount for %q", kind)
		}
	}
	if s.SecondCourseDiscountPct.IsNegative() || s.SecondCourseDiscountPct.GreaterThan(hundred) {
		return fmt.Errorf("pricing schedule: second_course_discount_pct out of range")
	}
	for _, tier := range s.SiblingTiers {
		if tier.MinStudents < 1 {
			return fmt.Errorf("pricing schedule: sibling tier min_students must be >= 1")
		}
		if tier.Pct.IsNegative() || tier.Pct.GreaterThan(hundred) {
			return fmt.Errorf("pricing schedule: sibling tier pct out of range")
		}
	}
	sort.SliceStable(s.SiblingTiers, func(i, j int) bool {
		return s.SiblingTiers[i].MinStudents < s.SiblingTiers[j].MinStudents
	})
	return nil
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
