package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/store"
)

const account = "069a79f4-44e9-4726-a5be-fca90e38aaf5"

// withGateways runs fn against the memory store and a sqlite store.
func withGateways(t *testing.T, fn func(t *testing.T, gw datastore.Gateway)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		st, err := datastore.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("store_test: failed to open db: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})
}

func row(identifier, typ string, start int64, calc string) datastore.Row {
	reason := "spamming"
	return datastore.Row{
		Identifier:  identifier,
		Name:        "Steve",
		Operator:    "Admin",
		Reason:      &reason,
		Calculation: calc,
		Start:       start,
		End:         datastore.PermanentEnd,
		Type:        typ,
	}
}

func TestGatewayContract(t *testing.T) {
	withGateways(t, func(t *testing.T, gw datastore.Gateway) {
		ctx := context.Background()

		mute, err := gw.InsertActive(ctx, row(account, "MUTE", 20, ""))
		if err != nil {
			t.Fatalf("InsertActive: unexpected error: %v", err)
		}
		if _, err := gw.InsertActive(ctx, row("10.1.1.1", "IP_BAN", 10, "")); err != nil {
			t.Fatalf("InsertActive: unexpected error: %v", err)
		}
		for _, calc := range []string{"spam", "Spam", "other"} {
			if _, err := gw.InsertHistory(ctx, row(account, "TEMP_MUTE", 5, calc)); err != nil {
				t.Fatalf("InsertHistory: unexpected error: %v", err)
			}
		}

		rows, err := gw.SelectByIdentifierOrAddress(ctx, datastore.Active, account, "10.1.1.1")
		if err != nil {
			t.Fatalf("SelectByIdentifierOrAddress: unexpected error: %v", err)
		}
		var types []string
		for _, r := range rows {
			types = append(types, r.Type)
		}
		if diff := cmp.Diff([]string{"IP_BAN", "MUTE"}, types); diff != "" {
			t.Errorf("active rows mismatch (-want +got):\n%s", diff)
		}

		count, err := gw.CountByCalculation(ctx, account, "SPAM")
		if err != nil {
			t.Fatalf("CountByCalculation: unexpected error: %v", err)
		}
		if count != 2 {
			t.Errorf("CountByCalculation = %d, want 2", count)
		}

		exact, err := gw.SelectExact(ctx, account, 20)
		if err != nil {
			t.Fatalf("SelectExact: unexpected error: %v", err)
		}
		if exact == nil || exact.ID != mute {
			t.Errorf("SelectExact = %+v, want id %d", exact, mute)
		}

		if err := gw.Delete(ctx, mute); err != nil {
			t.Fatalf("Delete: unexpected error: %v", err)
		}
		got, err := gw.SelectByID(ctx, mute)
		if err != nil {
			t.Fatalf("SelectByID: unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("SelectByID after delete = %+v, want nil", got)
		}
	})
}

func TestMemoryFailureInjection(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	boom := errors.New("disk full")

	st.Fail(store.OpInsertActive, boom)
	if _, err := st.InsertActive(ctx, row(account, "BAN", 1, "")); !errors.Is(err, datastore.ErrStorageUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("InsertActive error = %v, want injected failure", err)
	}
	if n := len(st.Rows(datastore.Active)); n != 0 {
		t.Fatalf("rows after failed insert = %d, want 0", n)
	}

	st.Fail(store.OpInsertActive, nil)
	if _, err := st.InsertActive(ctx, row(account, "BAN", 1, "")); err != nil {
		t.Fatalf("InsertActive: unexpected error: %v", err)
	}

	st.FailAll(boom)
	if _, err := st.SelectByID(ctx, 1); !errors.Is(err, datastore.ErrStorageUnavailable) {
		t.Errorf("SelectByID error = %v, want ErrStorageUnavailable", err)
	}
	if got := st.Calls(store.OpInsertActive); got != 2 {
		t.Errorf("Calls(insert active) = %d, want 2", got)
	}
	if got := st.TotalCalls(); got != 3 {
		t.Errorf("TotalCalls = %d, want 3", got)
	}
}

func TestMemoryZeroIDs(t *testing.T) {
	st := store.NewMemory()
	st.ReportZeroIDs(true)

	id, err := st.InsertActive(context.Background(), row(account, "BAN", 7, ""))
	if err != nil {
		t.Fatalf("InsertActive: unexpected error: %v", err)
	}
	if id != 0 {
		t.Fatalf("InsertActive id = %d, want 0", id)
	}
	exact, err := st.SelectExact(context.Background(), account, 7)
	if err != nil || exact == nil || exact.ID != 1 {
		t.Fatalf("SelectExact = %+v, %v; want stored row with id 1", exact, err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	id, _ := st.InsertActive(ctx, row(account, "BAN", 1, ""))
	got, _ := st.SelectByID(ctx, id)
	*got.Reason = "changed"

	again, _ := st.SelectByID(ctx, id)
	if *again.Reason != "spamming" {
		t.Errorf("stored reason = %q, want spamming", *again.Reason)
	}
}
