package untron

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"testing"
)

// The digest formula is a wire contract with the remote observer program:
// this test recomputes it from first principles so an accidental encoding
// change cannot slip through.
func TestChainActionDigestFormula(t *testing.T) {
	var prev [32]byte
	prev[0] = 0x11
	receiver := newTestReceiver(0xA7)
	minDeposit := big.NewInt(5)
	size := big.NewInt(50)
	timestamp := int64(1_700_000_000_123)

	var buf []byte
	buf = append(buf, prev[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	buf = append(buf, receiver[:]...)
	expectedMin := make([]byte, 32)
	minDeposit.FillBytes(expectedMin)
	buf = append(buf, expectedMin...)
	expectedSize := make([]byte, 32)
	size.FillBytes(expectedSize)
	buf = append(buf, expectedSize...)
	want := sha256.Sum256(buf)

	got := chainAction(prev, timestamp, receiver, minDeposit, size)
	if got != want {
		t.Fatalf("digest formula drifted from the wire contract")
	}
}

func TestChainActionDistinguishesFields(t *testing.T) {
	var prev [32]byte
	receiver := newTestReceiver(0xA7)
	base := chainAction(prev, 1000, receiver, big.NewInt(5), big.NewInt(50))
	if chainAction(prev, 1001, receiver, big.NewInt(5), big.NewInt(50)) == base {
		t.Fatalf("timestamp must affect the digest")
	}
	if chainAction(prev, 1000, newTestReceiver(0xA8), big.NewInt(5), big.NewInt(50)) == base {
		t.Fatalf("receiver must affect the digest")
	}
	if chainAction(prev, 1000, receiver, big.NewInt(6), big.NewInt(50)) == base {
		t.Fatalf("min deposit must affect the digest")
	}
	if chainAction(base, 1000, receiver, big.NewInt(5), big.NewInt(50)) == base {
		t.Fatalf("previous tip must affect the digest")
	}
}

func TestActionChainAppendOnly(t *testing.T) {
	engine, _, clock := setupEngine(t)
	r1, r2 := newTestReceiver(0xA1), newTestReceiver(0xA2)
	registerProvider(t, engine, r1, r2)

	var digests [][32]byte
	tip := engine.ActionChainTip()
	first := createTestOrder(t, engine, r1, 50)
	digests = append(digests, first)
	if engine.ActionChainTip() != chainAction(tip, clock.now, r1, big.NewInt(5), big.NewInt(50)) {
		t.Fatalf("tip must extend the previous tip")
	}

	second := createTestOrder(t, engine, r2, 60)
	digests = append(digests, second)
	if err := engine.StopOrder(testCreator, second); err != nil {
		t.Fatalf("stop order: %v", err)
	}
	// The release action extends the chain too.
	releaseTip := engine.ActionChainTip()
	if releaseTip != chainAction(second, clock.now, r2, big.NewInt(0), big.NewInt(0)) {
		t.Fatalf("receiver release must chain the zero action")
	}
	digests = append(digests, releaseTip)

	for _, digest := range digests {
		if !engine.IsActionKnown(digest) {
			t.Fatalf("every produced digest must stay in the membership set")
		}
	}
	seen := make(map[[32]byte]struct{})
	for _, digest := range digests {
		if _, dup := seen[digest]; dup {
			t.Fatalf("no digest may be produced twice")
		}
		seen[digest] = struct{}{}
	}
}

func TestOrderIDDependsOnPriorRelease(t *testing.T) {
	engine, _, clock := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	first := createTestOrder(t, engine, receiver, 50)
	clock.now += int64(testTTL) + 1

	// The forced release advances the tip before the new order is chained, so
	// the new id depends causally on the release of the old one.
	releaseDigest := chainAction(first, clock.now, receiver, big.NewInt(0), big.NewInt(0))
	expected := chainAction(releaseDigest, clock.now, receiver, big.NewInt(5), big.NewInt(50))
	second := createTestOrder(t, engine, receiver, 50)
	if second != expected {
		t.Fatalf("order id must chain on top of the prior release action")
	}
}
