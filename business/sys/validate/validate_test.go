package validate_test

import (
	"testing"

	"github.com/pocketcoin/node/business/sys/validate"
	"github.com/pocketcoin/node/business/web/errs"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

type payment struct {
	To     string `json:"to" validate:"required,address"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
}

func Test_Check(t *testing.T) {
	t.Log("Given the need to validate request models.")
	{
		good := payment{To: "PC_" + "0123456789abcdef0123456789abcdef01234567", Amount: 5}
		if err := validate.Check(good); err != nil {
			t.Fatalf("\t%s\tShould accept a valid model: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept a valid model.", success)

		err := validate.Check(payment{To: "nope"})
		fields := errs.GetFieldErrors(err)
		if fields == nil {
			t.Fatalf("\t%s\tShould report field errors: %v", failed, err)
		}

		m := fields.Fields()
		if _, exists := m["to"]; !exists {
			t.Fatalf("\t%s\tShould report the bad address by its json name: %v", failed, m)
		}
		if _, exists := m["amount"]; !exists {
			t.Fatalf("\t%s\tShould report the missing amount: %v", failed, m)
		}
		t.Logf("\t%s\tShould report each bad field by its json name.", success)
	}
}
