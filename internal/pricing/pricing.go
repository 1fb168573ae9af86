// Package pricing computes enrollment fees and recurring totals.
//
// Every function here is pure: the result depends only on the schedule and
// the arguments. Invalid kinds are rejected upstream by request validation;
// here they price at zero.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

var hundred = decimal.NewFromInt(100)

// DiscountedPrice returns base reduced by pct percent, rounded to cents.
func DiscountedPrice(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
}

// FeeForKind is the one-time enrollment fee charged at checkout.
func (s Schedule) FeeForKind(kind enrollment.Kind) decimal.Decimal {
	return s.Kinds[kind].EnrollmentFee
}

// SiblingDiscountPct returns the highest tier pct matching studentCount.
func (s Schedule) SiblingDiscountPct(studentCount int) decimal.Decimal {
	pct := decimal.Zero
	for _, tier := range s.SiblingTiers {
		if studentCount >= tier.MinStudents && tier.Pct.GreaterThan(pct) {
			pct = tier.Pct
		}
	}
	return pct
}

// CoursePrices returns the monthly price of each of a student's courses in
// selection order. Only the second course is discounted.
func (s Schedule) CoursePrices(kind enrollment.Kind, courseCount int) []decimal.Decimal {
	if courseCount <= 0 || !kind.AllowsCourses() {
		return nil
	}
	base := s.Kinds[kind].CourseMonthly
	out := make([]decimal.Decimal, courseCount)
	for i := range out {
		if i == 1 {
			out[i] = DiscountedPrice(base, s.SecondCourseDiscountPct)
			continue
		}
		out[i] = base
	}
	return out
}

// WorldPrice is the monthly world/track price, zero for kinds without one.
func (s Schedule) WorldPrice(kind enrollment.Kind) decimal.Decimal {
	if !kind.RequiresWorld() {
		return decimal.Zero
	}
	return s.Kinds[kind].WorldMonthly
}

// StudentMonthly is one student's undiscounted-by-sibling monthly price.
func (s Schedule) StudentMonthly(kind enrollment.Kind, courseCount int) decimal.Decimal {
	total := s.WorldPrice(kind)
	for _, p := range s.CoursePrices(kind, courseCount) {
		total = total.Add(p)
	}
	return total
}

// TotalWithDiscount returns the recurring monthly total for the whole
// enrollment and the sibling discount pct applied to it.
// coursesPerStudent holds each student's course count; studentCount is
// authoritative for the sibling tier.
func (s Schedule) TotalWithDiscount(kind enrollment.Kind, studentCount int, coursesPerStudent []int) (decimal.Decimal, decimal.Decimal) {
	sum := decimal.Zero
	for i := 0; i < studentCount; i++ {
		courses := 0
		if i < len(coursesPerStudent) {
			courses = coursesPerStudent[i]
		}
		sum = sum.Add(s.StudentMonthly(kind, courses))
	}
	pct := s.SiblingDiscountPct(studentCount)
	return DiscountedPrice(sum, pct), pct
}
