package call

import "github.com/dkeye/voicecall/internal/domain"

// InvitePolicy answers an invite that arrives while a call is in progress.
type InvitePolicy interface {
	OnConcurrentInvite(current SessionSnapshot, from domain.UserID) domain.RejectReason
}

// BusyPolicy always answers busy.
type BusyPolicy struct{}

func (BusyPolicy) OnConcurrentInvite(SessionSnapshot, domain.UserID) domain.RejectReason {
	return domain.RejectBusy
}
