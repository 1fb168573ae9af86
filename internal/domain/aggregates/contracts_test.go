package aggregates

import (
	"testing"

	"github.com/yungbote/enrollment-backend/internal/domain/enrollment"
)

type tabler interface{ TableName() string }

func TestContractsValidate(t *testing.T) {
	for _, c := range []Contract{EnrollmentAggregateContract, PaymentAggregateContract} {
		if err := c.Validate(); err != nil {
			t.Fatalf("%s: %v", c.Name, err)
		}
	}
	bad := Contract{Name: "x", WriteTxOwnership: WriteTxOwnedByAggregate, Replay: ReplayNoop}
	if err := bad.Validate(); err == nil {
		t.Fatalf("contract without tables should fail")
	}
	bad.Tables = []string{"payment"}
	bad.WriteTxOwnership = "caller_owned"
	if err := bad.Validate(); err == nil {
		t.Fatalf("caller owned tx should fail")
	}
}

func TestEnrollmentContractCoversEveryCreatedTable(t *testing.T) {
	models := []tabler{
		enrollment.Guardian{},
		enrollment.Enrollment{},
		enrollment.Student{},
		enrollment.EnrollmentStudent{},
		enrollment.CourseSelection{},
		enrollment.WorldSelection{},
		enrollment.Payment{},
		enrollment.StateHistory{},
	}
	for _, m := range models {
		if !EnrollmentAggregateContract.Writes(m.TableName()) {
			t.Fatalf("enrollment contract does not declare %s", m.TableName())
		}
	}
	if PaymentAggregateContract.Writes(enrollment.Guardian{}.TableName()) {
		t.Fatalf("payment contract must not write guardians")
	}
}
