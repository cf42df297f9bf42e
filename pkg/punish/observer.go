package punish

import "github.com/NicolasHaas/sanction/pkg/model"

// Observer receives lifecycle counters, typically for metrics.
type Observer interface {
	Created(t model.PunishmentType)
	Revoked(t model.PunishmentType, massClear bool)
	Expired(t model.PunishmentType)
	StorageFailure(op string)
	Escalated()
}

type nopObserver struct{}

func (nopObserver) Created(model.PunishmentType)       {}
func (nopObserver) Revoked(model.PunishmentType, bool) {}
func (nopObserver) Expired(model.PunishmentType)       {}
func (nopObserver) StorageFailure(string)              {}
func (nopObserver) Escalated()                         {}
