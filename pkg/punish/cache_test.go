package punish_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/events"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/store"
)

func TestConnectWithoutRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	data := e.connect(t)
	require.Empty(t, data.Punishments)
	require.Empty(t, data.History)
	require.True(t, e.cache.Cached(steve))
	require.True(t, e.cache.CachedName("STEVE"))
	require.True(t, e.cache.Cached(model.AddressID(steveAddr)))
	require.False(t, e.cache.IsBanned(ctx, steve))
}

func TestAcceptDataIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.add(t, e.punishment(model.Mute, 0))

	data := e.connect(t)
	e.cache.AcceptData(data)
	active, history, _ := e.cache.Size()
	require.Equal(t, 1, active)
	require.Equal(t, 1, history)
}

func TestAddKeepsPunishmentInSets(t *testing.T) {
	type tcase struct {
		typ        model.PunishmentType
		wantActive bool
	}
	tcases := map[string]tcase{
		"ban":      {typ: model.Ban, wantActive: true},
		"tempmute": {typ: model.TempMute, wantActive: true},
		"warning":  {typ: model.Warning, wantActive: true},
		"kick":     {typ: model.Kick, wantActive: false},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			e.connect(t)

			p := e.add(t, e.punishment(tc.typ, time.Hour))

			history := e.cache.Punishments(ctx, steve, tc.typ, false)
			require.Len(t, history, 1)
			require.Same(t, p, history[0])

			active := e.cache.Punishments(ctx, steve, tc.typ, true)
			require.Equal(t, tc.wantActive, len(active) == 1)
			require.Equal(t, tc.wantActive, p.Registered())
			require.Len(t, e.store.Rows(datastore.History), 1)
			if tc.wantActive {
				require.Len(t, e.store.Rows(datastore.Active), 1)
			} else {
				require.Empty(t, e.store.Rows(datastore.Active))
			}
		})
	}
}

func TestAddRejectsRegistered(t *testing.T) {
	e := newEnv(t)
	p := e.punishment(model.Ban, 0)
	require.NoError(t, p.SetID(3))

	err := e.cache.Add(context.Background(), p, false)
	require.ErrorIs(t, err, model.ErrInvalidState)
	require.Zero(t, e.store.TotalCalls())
}

func TestAddSurfacesStorageFailure(t *testing.T) {
	for _, op := range []store.Op{store.OpInsertHistory, store.OpInsertActive} {
		t.Run(string(op), func(t *testing.T) {
			e := newEnv(t)
			e.connect(t)
			e.store.Fail(op, errors.New("disk full"))

			err := e.cache.Add(context.Background(), e.punishment(model.Mute, 0), false)
			require.ErrorIs(t, err, datastore.ErrStorageUnavailable)

			active, history, _ := e.cache.Size()
			require.Zero(t, active)
			require.Zero(t, history)
			require.Empty(t, e.recorded())
			require.Zero(t, e.queue.Len())
		})
	}
}

func TestAddRecoversIDWhenDriverReportsZero(t *testing.T) {
	e := newEnv(t)
	e.store.ReportZeroIDs(true)

	p := e.add(t, e.punishment(model.Ban, 0))
	id, ok := p.ID()
	require.True(t, ok)
	require.Equal(t, int64(1), id)
	require.Equal(t, 1, e.store.Calls(store.OpSelectExact))
}

func TestAddStaysUnregisteredWhenRecoveryFails(t *testing.T) {
	e := newEnv(t)
	e.store.ReportZeroIDs(true)
	e.store.Fail(store.OpSelectExact, errors.New("timeout"))

	p := e.add(t, e.punishment(model.Ban, 0))
	require.False(t, p.Registered())
	require.ErrorIs(t, e.cache.Delete(context.Background(), p, false), model.ErrNotRegistered)
	require.ErrorIs(t, e.cache.Update(context.Background(), p), model.ErrNotRegistered)
}

func TestDeleteThenLookup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)

	p := e.add(t, e.punishment(model.Ban, 0))
	id, _ := p.ID()
	_, ok := e.cache.PunishmentByID(ctx, id)
	require.True(t, ok)

	require.NoError(t, e.cache.Delete(ctx, p, false))

	_, ok = e.cache.PunishmentByID(ctx, id)
	require.False(t, ok)
	require.False(t, e.cache.IsBanned(ctx, steve))
	require.Len(t, e.cache.Punishments(ctx, steve, model.Ban, false), 1)

	got := e.recorded()
	require.Len(t, got, 2)
	require.Equal(t, events.Revoked, got[1].Kind)
	require.False(t, got[1].MassClear)
}

func TestDeleteSurfacesStorageFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)
	p := e.add(t, e.punishment(model.Mute, 0))

	e.store.Fail(store.OpDelete, errors.New("locked"))
	require.ErrorIs(t, e.cache.Delete(ctx, p, false), datastore.ErrStorageUnavailable)
	require.True(t, e.cache.IsMuted(ctx, steve))
}

func TestUpdateWritesReason(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.add(t, e.punishment(model.Mute, 0))
	p.SetReason("advertising")
	require.NoError(t, e.cache.Update(ctx, p))

	id, _ := p.ID()
	got, ok := e.cache.PunishmentByID(ctx, id)
	require.True(t, ok)
	reason, _ := got.Reason()
	require.Equal(t, "advertising", reason)
}

func TestLoadRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.punishment(model.TempBan, 2*time.Hour)
	p.SetReason("x-ray")
	e.add(t, p)

	data := e.cache.Load(ctx, steve, "Steve", steveAddr)
	require.Len(t, data.Punishments, 1)
	require.Len(t, data.History, 1)

	got := data.Punishments[0]
	type view struct {
		Identifier string
		Type       model.PunishmentType
		Start, End int64
		Reason     string
	}
	toView := func(p *model.Punishment) view {
		reason, _ := p.Reason()
		return view{p.Identifier().String(), p.Type(), p.Start().UnixMilli(), p.End().UnixMilli(), reason}
	}
	if diff := cmp.Diff(toView(p), toView(got)); diff != "" {
		t.Errorf("reloaded punishment mismatch (-want +got):\n%s", diff)
	}
	ban, ok := e.cache.Ban(data)
	require.True(t, ok)
	require.True(t, ban.SameRecord(p))
}

func TestLoadIncludesAddressPunishments(t *testing.T) {
	e := newEnv(t)
	now := e.clock.Now()
	ipban := model.NewPunishment(model.AddressID(steveAddr), "Steve", "Admin", "", now, time.Time{}, model.IPBan)
	e.add(t, ipban)

	data := e.cache.Load(context.Background(), steve, "Steve", steveAddr)
	ban, ok := e.cache.Ban(data)
	require.True(t, ok)
	require.Equal(t, model.IPBan, ban.Type())
}

func TestLoadDegradesOnStorageFailure(t *testing.T) {
	e := newEnv(t)
	e.add(t, e.punishment(model.Ban, 0))
	e.store.FailAll(errors.New("connection refused"))

	data := e.cache.Load(context.Background(), steve, "Steve", steveAddr)
	require.Empty(t, data.Punishments)
	require.Empty(t, data.History)
	require.Equal(t, "Steve", data.Name)
	_, banned := e.cache.Ban(data)
	require.False(t, banned)
}

func TestUncachedMatchesStorage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.add(t, e.punishment(model.Warning, 0))
	e.add(t, e.punishment(model.TempWarning, time.Hour))
	e.add(t, e.punishment(model.Mute, 0))
	require.False(t, e.cache.Cached(steve))

	rows, err := e.store.SelectByIdentifier(ctx, datastore.Active, steve.String(), datastore.TypeTags(model.Warning.Family()))
	require.NoError(t, err)

	got := e.cache.Punishments(ctx, steve, model.Warning, true)
	require.Len(t, got, len(rows))
	for i, p := range got {
		id, _ := p.ID()
		require.Equal(t, rows[i].ID, id)
	}

	before := e.store.TotalCalls()
	e.cache.Punishments(ctx, steve, model.Warning, true)
	require.Greater(t, e.store.TotalCalls(), before, "uncached lookups must query storage")
	require.False(t, e.cache.Cached(steve), "uncached lookups must not populate the cache")
}

func TestCachedLookupsSkipStorage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)
	e.add(t, e.punishment(model.Mute, 0))

	before := e.store.TotalCalls()
	require.True(t, e.cache.IsMuted(ctx, steve))
	require.False(t, e.cache.IsBanned(ctx, steve))
	require.Zero(t, e.cache.CurrentWarns(ctx, steve))
	require.Equal(t, before, e.store.TotalCalls())
}

func TestBanExpiresOnRead(t *testing.T) {
	for _, cached := range []bool{true, false} {
		name := "uncached"
		if cached {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			if cached {
				e.connect(t)
			}

			e.add(t, e.punishment(model.TempBan, time.Hour))
			require.True(t, e.cache.IsBanned(ctx, steve))

			e.clock.Advance(time.Hour + time.Second)
			require.False(t, e.cache.IsBanned(ctx, steve))
			require.Empty(t, e.store.Rows(datastore.Active))
			require.Len(t, e.store.Rows(datastore.History), 1)
			if cached {
				require.Len(t, e.cache.Punishments(ctx, steve, model.Ban, false), 1)
			}

			got := e.recorded()
			require.Equal(t, events.Revoked, got[len(got)-1].Kind)
			require.True(t, got[len(got)-1].MassClear)
		})
	}
}

// slowDelete holds every delete long enough for concurrent readers to
// collect the same expired entry.
type slowDelete struct {
	*store.MemoryStore
}

func (s slowDelete) Delete(ctx context.Context, id int64) error {
	time.Sleep(5 * time.Millisecond)
	return s.MemoryStore.Delete(ctx, id)
}

func TestExpiryRevokesOnceUnderConcurrentReads(t *testing.T) {
	for _, cached := range []bool{true, false} {
		name := "uncached"
		if cached {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnvWith(t, func(m *store.MemoryStore) datastore.Gateway { return slowDelete{m} })
			ctx := context.Background()
			if cached {
				e.connect(t)
			}
			e.add(t, e.punishment(model.TempBan, time.Hour))
			e.clock.Advance(2 * time.Hour)

			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					e.cache.IsBanned(ctx, steve)
				}()
			}
			wg.Wait()
			require.False(t, e.cache.IsBanned(ctx, steve))

			revoked := 0
			for _, ev := range e.recorded() {
				if ev.Kind == events.Revoked {
					revoked++
				}
			}
			require.Equal(t, 1, revoked)
			require.Empty(t, e.store.Rows(datastore.Active))
		})
	}
}

func TestExpiredEvictedEvenIfDeleteFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)
	e.add(t, e.punishment(model.TempMute, time.Minute))

	e.clock.Advance(2 * time.Minute)
	e.store.Fail(store.OpDelete, errors.New("locked"))
	require.False(t, e.cache.IsMuted(ctx, steve))

	active, _, _ := e.cache.Size()
	require.Zero(t, active)
	require.Len(t, e.store.Rows(datastore.Active), 1)
}

func TestPurgeExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)
	e.add(t, e.punishment(model.TempMute, time.Minute))
	e.add(t, e.punishment(model.TempWarning, time.Hour))
	e.add(t, e.punishment(model.Ban, 0))

	e.clock.Advance(10 * time.Minute)
	require.Equal(t, 1, e.cache.PurgeExpired(ctx))

	live := e.cache.LoadedPunishments(ctx, false)
	require.Len(t, live, 2)

	got := e.recorded()
	last := got[len(got)-1]
	require.Equal(t, events.Revoked, last.Kind)
	require.True(t, last.MassClear)
	require.Equal(t, model.TempMute, last.Punishment.Type())
}

func TestDiscard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)
	e.add(t, e.punishment(model.Mute, 0))

	e.cache.Discard(steve, "Steve", steveAddr)
	require.False(t, e.cache.Cached(steve))
	require.False(t, e.cache.CachedName("steve"))
	active, history, identities := e.cache.Size()
	require.Zero(t, active)
	require.Zero(t, history)
	require.Zero(t, identities)

	require.True(t, e.cache.IsMuted(ctx, steve), "storage stays authoritative")
}

func TestOpenWarmsOnlineSessions(t *testing.T) {
	e := newEnv(t)
	e.add(t, e.punishment(model.Mute, 0))
	e.online()

	e.cache.Open(context.Background())
	require.True(t, e.cache.Cached(steve))
	active, _, _ := e.cache.Size()
	require.Equal(t, 1, active)
}

func TestWarnLookup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	warn := e.add(t, e.punishment(model.Warning, 0))
	mute := e.add(t, e.punishment(model.Mute, 0))

	warnID, _ := warn.ID()
	muteID, _ := mute.ID()
	_, ok := e.cache.Warn(ctx, warnID)
	require.True(t, ok)
	_, ok = e.cache.Warn(ctx, muteID)
	require.False(t, ok)
	_, ok = e.cache.PunishmentByID(ctx, 999)
	require.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.connect(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				_ = e.cache.Add(ctx, e.punishment(model.TempMute, time.Duration(i*20+j)*time.Millisecond), true)
				e.cache.Punishments(ctx, steve, model.Mute, true)
				e.cache.PurgeExpired(ctx)
			}
		}()
	}
	wg.Wait()
	e.queue.RunPending()

	_, history, _ := e.cache.Size()
	require.Equal(t, 160, history)
}
