package venue

import (
	"context"

	"github.com/quantmill/quoter/pkg/models"
)

type SubmitStatus string

const (
	StatusFilled   SubmitStatus = "filled"
	StatusPending  SubmitStatus = "pending"
	StatusRejected SubmitStatus = "rejected"
)

// SubmitResult is the outcome of placing one quote side. Fill is set only
// when Status is StatusFilled.
type SubmitResult struct {
	Status SubmitStatus
	Fill   *models.Fill
}

// Venue is the quoting contract shared by the arrival simulator and the live
// order gateway, so the controller runs unchanged in paper and live mode.
type Venue interface {
	// SubmitQuote rests one side of the quote. A rejection or timeout is an
	// ordinary outcome (the quote is simply not filled this tick), never a
	// reason to stop quoting.
	SubmitQuote(ctx context.Context, side models.OrderSide, price, size float64) (SubmitResult, error)

	// CancelAll withdraws all resting quotes, best-effort.
	CancelAll(ctx context.Context) error
}
