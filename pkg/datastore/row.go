package datastore

import (
	"fmt"
	"time"

	"github.com/NicolasHaas/sanction/pkg/model"
)

// PermanentEnd is the stored end value of permanent punishments.
const PermanentEnd int64 = -1

// Row is the storage form of a punishment. Times are unix milliseconds.
type Row struct {
	ID          int64
	Identifier  string
	Name        string
	Operator    string
	Reason      *string
	Calculation string
	Start       int64
	End         int64
	Type        string
}

// RowFrom converts a punishment to its storage form. The id is copied when
// the punishment is registered.
func RowFrom(p *model.Punishment) Row {
	row := Row{
		Identifier:  p.Identifier().String(),
		Name:        p.Name(),
		Operator:    p.Operator(),
		Calculation: p.Calculation(),
		Start:       p.Start().UnixMilli(),
		End:         PermanentEnd,
		Type:        p.Type().String(),
	}
	if p.Type().IsTemp() {
		row.End = p.End().UnixMilli()
	}
	if reason, ok := p.Reason(); ok {
		row.Reason = &reason
	}
	if id, ok := p.ID(); ok {
		row.ID = id
	}
	return row
}

// Punishment converts a row back into a registered punishment.
func (r Row) Punishment() (*model.Punishment, error) {
	identifier, err := model.ParseIdentifier(r.Identifier)
	if err != nil {
		return nil, fmt.Errorf("datastore: row %d: %w", r.ID, err)
	}
	typ, err := model.ParsePunishmentType(r.Type)
	if err != nil {
		return nil, fmt.Errorf("datastore: row %d: %w", r.ID, err)
	}
	var end time.Time
	if r.End != PermanentEnd {
		end = time.UnixMilli(r.End)
	}
	p := model.NewPunishment(identifier, r.Name, r.Operator, r.Calculation, time.UnixMilli(r.Start), end, typ)
	if r.Reason != nil {
		p.SetReason(*r.Reason)
	}
	if r.ID != 0 {
		if err := p.SetID(r.ID); err != nil {
			return nil, fmt.Errorf("datastore: row %d: %w", r.ID, err)
		}
	}
	return p, nil
}

// TypeTags converts punishment types to their storage tags.
func TypeTags(types []model.PunishmentType) []string {
	tags := make([]string, len(types))
	for i, t := range types {
		tags[i] = t.String()
	}
	return tags
}
