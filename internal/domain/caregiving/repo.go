package caregiving

import (
	"context"

	"github.com/google/uuid"
)

// RoundRepository persists rounds. GetByID returns *RoundNotFoundError when
// no round has the id.
type RoundRepository interface {
	Create(ctx context.Context, r *CaregivingRound) error
	Update(ctx context.Context, r *CaregivingRound) error
	GetByID(ctx context.Context, id uuid.UUID) (*CaregivingRound, error)
	ListByReceptionID(ctx context.Context, receptionID uuid.UUID) ([]*CaregivingRound, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*CaregivingRound, error)
	Search(ctx context.Context, criteria SearchCriteria, limit, offset int) ([]*CaregivingRound, int, error)
}

// ChargeRepository persists charges keyed by round id. GetByRoundID returns
// *ChargeNotFoundError when the round has no charge yet.
type ChargeRepository interface {
	GetByRoundID(ctx context.Context, roundID uuid.UUID) (*CaregivingCharge, error)
	ListByReceptionID(ctx context.Context, receptionID uuid.UUID) ([]*CaregivingCharge, error)
	Save(ctx context.Context, c *CaregivingCharge) error
}

// ReceptionRepository is the reception read model. GetReception returns
// *ReceptionNotFoundError for unknown ids.
type ReceptionRepository interface {
	GetReception(ctx context.Context, id uuid.UUID) (*Reception, error)
	GetReceptions(ctx context.Context, ids []uuid.UUID) ([]*Reception, error)
	Save(ctx context.Context, r *Reception) error
}

// TxRunner runs fn inside one transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
