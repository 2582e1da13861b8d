// Package quota decides whether a metered operation is allowed for a user's
// subscription tier. Checks are pure reads; counters are incremented
// elsewhere, only after an operation fully succeeds.
package quota

import (
	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/models"
)

// Op is a metered operation kind.
type Op string

const (
	OpDocument Op = "document"
	OpMessage  Op = "message"
)

// Limits is the ceiling pair for one tier.
type Limits struct {
	MaxDocuments int
	MaxMessages  int
}

type Policy struct {
	limits map[models.Tier]Limits
}

func NewPolicy(cfg config.QuotaConfig) *Policy {
	return &Policy{
		limits: map[models.Tier]Limits{
			models.TierFree:    {MaxDocuments: cfg.FreeDocuments, MaxMessages: cfg.FreeMessages},
			models.TierPremium: {MaxDocuments: cfg.PremiumDocuments, MaxMessages: cfg.PremiumMessages},
			models.TierPro:     {MaxDocuments: cfg.ProDocuments, MaxMessages: cfg.ProMessages},
		},
	}
}

// LimitsFor returns the configured limits for a tier. A tier without a row
// is an error, never an implicit allow.
func (p *Policy) LimitsFor(tier models.Tier) (Limits, error) {
	l, ok := p.limits[tier]
	if !ok {
		return Limits{}, apperr.Newf(apperr.KindInternal, "no quota limits configured for tier %q", tier)
	}
	return l, nil
}

// Check returns nil when the user may perform op, or a QuotaExceeded error
// naming the tier and limit so clients can render an upgrade prompt.
// Unknown tiers fail closed.
func (p *Policy) Check(user *models.User, op Op) error {
	l, err := p.LimitsFor(user.Tier)
	if err != nil {
		return err
	}

	switch op {
	case OpDocument:
		if user.DocumentsUsed >= l.MaxDocuments {
			return apperr.Newf(apperr.KindQuotaExceeded,
				"document limit reached for %s tier (%d of %d used)", user.Tier, user.DocumentsUsed, l.MaxDocuments)
		}
	case OpMessage:
		if user.MessagesUsed >= l.MaxMessages {
			return apperr.Newf(apperr.KindQuotaExceeded,
				"message limit reached for %s tier (%d of %d used)", user.Tier, user.MessagesUsed, l.MaxMessages)
		}
	default:
		return apperr.Newf(apperr.KindInternal, "unknown operation kind %q", op)
	}
	return nil
}
