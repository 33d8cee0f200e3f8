package database_test

import (
	"testing"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/digest"
)

func TestCanonical(t *testing.T) {
	type table struct {
		name string
		tx   database.Transaction
		exp  string
	}

	tt := []table{
		{
			name: "coinbase",
			tx:   database.NewCoinbase("Andrew", database.FloatToCoin(5)),
			exp:  `{"sender": "Coinbase", "recipient": "Andrew", "amount": 500000000}`,
		},
		{
			name: "escaped",
			tx:   database.NewTransaction(`a"b\c`, "line\nbreak", 1),
			exp:  `{"sender": "a\"b\\c", "recipient": "line\nbreak", "amount": 1}`,
		},
		{
			name: "unicode",
			tx:   database.NewTransaction("caf\u00e9", "\U0001F600", 0),
			exp:  `{"sender": "caf\u00e9", "recipient": "\ud83d\ude00", "amount": 0}`,
		},
	}

	t.Log("Given the need to encode transactions canonically.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				got := tst.tx.Canonical()
				if got != tst.exp {
					t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, got)
					t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.exp)
					t.Fatalf("\t%s\tTest %d:\tShould get the canonical encoding.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get the canonical encoding.", success, testID)

				hash, _ := tst.tx.Hash()
				if hash != digest.Commit(tst.exp) {
					t.Fatalf("\t%s\tTest %d:\tShould commit to the canonical encoding.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould commit to the canonical encoding.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func TestFloatToCoin(t *testing.T) {
	type table struct {
		value float64
		exp   uint64
	}

	tt := []table{
		{value: 5, exp: 500_000_000},
		{value: 0.5, exp: 50_000_000},
		{value: 0.000000001, exp: 0},
		{value: 1.25, exp: 125_000_000},
		{value: -1, exp: 0},
	}

	for testID, tst := range tt {
		if got := database.FloatToCoin(tst.value); got != tst.exp {
			t.Fatalf("\t%s\tTest %d:\tShould convert %v to %d units, got %d.", failed, testID, tst.value, tst.exp, got)
		}
		t.Logf("\t%s\tTest %d:\tShould convert %v to %d units.", success, testID, tst.value, tst.exp)
	}
}
