package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
)

func TestSearch(t *testing.T) {
	t.Log("Given the need to find the proof of work for a header.")
	{
		h := database.BlockHeader{
			Version:      database.Version,
			Index:        2,
			PreviousHash: "prev",
			TimeStamp:    1700000000.25,
			Difficulty:   "a",
		}

		nonce, proof, err := database.Search(t.Context(), h, "a", noop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to find a proof: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to find a proof.", success)

		if !strings.HasSuffix(proof, "a") || proof != database.HeaderCommitment(h, nonce) {
			t.Fatalf("\t%s\tShould return the commitment of the nonce: %d, %s", failed, nonce, proof)
		}
		t.Logf("\t%s\tShould return the commitment of the nonce.", success)

		for n := uint64(0); n < nonce; n++ {
			if strings.HasSuffix(database.HeaderCommitment(h, n), "a") {
				t.Fatalf("\t%s\tShould return the smallest solving nonce: %d solves before %d", failed, n, nonce)
			}
		}
		t.Logf("\t%s\tShould return the smallest solving nonce.", success)
	}
}

func TestPOWOnGenesis(t *testing.T) {
	t.Log("Given the need to mine a block with an empty mempool on top of genesis.")
	{
		genesis := buildChain(t, 1, "")[0]

		block, err := database.NewBlock(database.HeaderArgs{PrevBlock: genesis, Difficulty: "ab"})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to draft the block: %v", failed, err)
		}

		block, err = database.POW(t.Context(), block, noop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the block: %v", failed, err)
		}

		if block.Header.Index != 2 || block.Header.MerkleRoot != "" {
			t.Fatalf("\t%s\tShould produce index 2 with an empty merkle root: %+v", failed, block.Header)
		}
		t.Logf("\t%s\tShould produce index 2 with an empty merkle root.", success)

		if !strings.HasSuffix(block.Header.Proof, "ab") {
			t.Fatalf("\t%s\tShould produce a proof ending with the difficulty: %s", failed, block.Header.Proof)
		}
		t.Logf("\t%s\tShould produce a proof ending with the difficulty.", success)

		if err := block.ValidateBlock(genesis, "ab", noop); err != nil {
			t.Fatalf("\t%s\tShould produce a block that validates: %v", failed, err)
		}
		t.Logf("\t%s\tShould produce a block that validates.", success)
	}
}

func TestSearchCancel(t *testing.T) {
	t.Log("Given the need to stop mining when another block wins.")
	{
		ctx, cancel := context.WithCancel(context.Background())

		h := database.BlockHeader{Version: database.Version, Index: 2, PreviousHash: "prev", Difficulty: "xyz"}

		type result struct {
			proof string
			err   error
		}
		ch := make(chan result, 1)

		go func() {
			_, proof, err := database.Search(ctx, h, "xyz", noop)
			ch <- result{proof: proof, err: err}
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case res := <-ch:
			if !errors.Is(res.err, context.Canceled) || res.proof != "" {
				t.Fatalf("\t%s\tShould stop with a cancellation error and no proof: %v", failed, res.err)
			}
			t.Logf("\t%s\tShould stop with a cancellation error and no proof.", success)

		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tShould stop promptly after the cancel.", failed)
		}
	}
}
