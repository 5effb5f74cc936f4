package policy

import "gatepass/pkg/domain"

// DefaultProvider is the legacy rule set consulted only when no policy row
// matches. It exists so the hardcoded rules live in exactly one place and can
// be deleted wholesale once the policy table reaches full coverage.
//
// Deprecated: seed pass_policies for every (category, pass category) pairing
// and retire this provider. The table is the canonical source of truth; where
// the two disagree, the table wins because it is the one being maintained.
type DefaultProvider struct{}

func NewDefaultProvider() *DefaultProvider {
	return &DefaultProvider{}
}

// Policy returns the legacy defaults for the pairing. Legacy rules impose no
// time windows or duration caps; they only classify the gate action.
func (p *DefaultProvider) Policy(sc domain.StudentCategory, pc domain.PassCategory) Policy {
	return Policy{
		StudentCategory: sc,
		PassCategory:    pc,
		HolidayBehavior: HolidayUnrestricted,
		GateAction:      p.gateAction(sc, pc),
	}
}

func (p *DefaultProvider) gateAction(sc domain.StudentCategory, pc domain.PassCategory) domain.GateAction {
	if sc == domain.CategoryDayScholar {
		switch pc {
		case domain.PassLeave, domain.PassOnDuty:
			return domain.GateActionNone
		case domain.PassPermission:
			return domain.GateActionExitOnly
		}
	}
	if sc == domain.CategoryResident && pc == domain.PassPermission {
		return domain.GateActionInternal
	}
	return domain.GateActionBoth
}
