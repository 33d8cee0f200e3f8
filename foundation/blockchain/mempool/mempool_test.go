package mempool_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/mempool"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func tx(sender string, amount uint64) database.Transaction {
	return database.NewTransaction(sender, "bob", amount)
}

func TestOrder(t *testing.T) {
	t.Log("Given the need to keep transactions in the order they arrive.")
	{
		mp := mempool.New()

		mp.Add(tx("a", 1))
		mp.Add(tx("b", 2))
		if n := mp.Insert(0, database.NewCoinbase("miner", 5)); n != 3 {
			t.Fatalf("\t%s\tShould have 3 transactions: %d", failed, n)
		}
		mp.Insert(10, tx("c", 3))
		mp.Insert(2, tx("d", 4))

		exp := []database.Transaction{
			database.NewCoinbase("miner", 5),
			tx("a", 1),
			tx("d", 4),
			tx("b", 2),
			tx("c", 3),
		}

		if got := mp.Copy(); !reflect.DeepEqual(got, exp) {
			t.Logf("\t%s\tgot: %v", failed, got)
			t.Logf("\t%s\texp: %v", failed, exp)
			t.Fatalf("\t%s\tShould insert at the requested positions.", failed)
		}
		t.Logf("\t%s\tShould insert at the requested positions.", success)
	}
}

func TestRemove(t *testing.T) {
	t.Log("Given the need to remove transactions that were mined elsewhere.")
	{
		mp := mempool.New()
		mp.Add(tx("a", 1))
		mp.Add(tx("a", 1))
		mp.Add(tx("b", 2))

		if !mp.Remove(tx("a", 1)) {
			t.Fatalf("\t%s\tShould remove an existing transaction.", failed)
		}
		if got := mp.Copy(); !reflect.DeepEqual(got, []database.Transaction{tx("a", 1), tx("b", 2)}) {
			t.Fatalf("\t%s\tShould remove only the first equal transaction: %v", failed, got)
		}
		t.Logf("\t%s\tShould remove only the first equal transaction.", success)

		if mp.Remove(tx("z", 9)) {
			t.Fatalf("\t%s\tShould report a missing transaction.", failed)
		}
		t.Logf("\t%s\tShould report a missing transaction.", success)
	}
}

func TestDrainAndTake(t *testing.T) {
	t.Log("Given the need to consume transactions into a block.")
	{
		mp := mempool.New()
		mp.Add(tx("a", 1))
		mp.Add(tx("b", 2))
		mp.Add(tx("c", 3))

		got := mp.Take(2)
		if !reflect.DeepEqual(got, []database.Transaction{tx("a", 1), tx("b", 2)}) {
			t.Fatalf("\t%s\tShould take the first transactions: %v", failed, got)
		}
		if !reflect.DeepEqual(mp.Copy(), []database.Transaction{tx("c", 3)}) {
			t.Fatalf("\t%s\tShould leave the later transactions: %v", failed, mp.Copy())
		}
		t.Logf("\t%s\tShould take only the first transactions.", success)

		if got := mp.Take(10); len(got) != 1 {
			t.Fatalf("\t%s\tShould take what exists: %v", failed, got)
		}
		t.Logf("\t%s\tShould take what exists.", success)

		mp.Add(tx("d", 4))
		mp.Add(tx("e", 5))
		if got := mp.Drain(); len(got) != 2 || mp.Count() != 0 {
			t.Fatalf("\t%s\tShould drain everything: %v", failed, got)
		}
		t.Logf("\t%s\tShould drain everything.", success)

		if got := mp.Drain(); len(got) != 0 {
			t.Fatalf("\t%s\tShould drain nothing from an empty pool: %v", failed, got)
		}
		t.Logf("\t%s\tShould drain nothing from an empty pool.", success)
	}
}

func TestConcurrentAdd(t *testing.T) {
	t.Log("Given the need to accept transactions from many requests.")
	{
		mp := mempool.New()

		const g = 50
		var wg sync.WaitGroup
		wg.Add(g)
		for i := range g {
			go func() {
				defer wg.Done()
				mp.Add(tx("a", uint64(i)))
			}()
		}
		wg.Wait()

		if mp.Count() != g {
			t.Fatalf("\t%s\tShould have every transaction: %d", failed, mp.Count())
		}
		t.Logf("\t%s\tShould have every transaction.", success)
	}
}
