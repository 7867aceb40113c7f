package curve

import "testing"

func TestBaseMulMatchesAdd(t *testing.T) {
	a, err := RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}
	b, err := RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}

	sum := a.Add(b)
	lhs := BaseMul(sum)
	rhs := BaseMul(a).Add(BaseMul(b))

	if !lhs.Equal(rhs) {
		t.Fatal("BaseMul(a+b) != BaseMul(a)+BaseMul(b)")
	}
}

func TestInvertRoundTrips(t *testing.T) {
	a, err := RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}
	if a.IsZero() {
		t.Skip("drew zero scalar, vanishingly unlikely")
	}
	inv := a.Invert()
	if !a.Mul(inv).Equal(OneFr()) {
		t.Fatal("a * (1/a) != 1")
	}
}

func TestInvertZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic inverting zero scalar")
		}
	}()
	ZeroFr().Invert()
}

func TestPointBytesRoundTrip(t *testing.T) {
	s, err := RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}
	p := BaseMul(s)
	b := p.Bytes()

	q, err := PtFromBytes(b)
	if err != nil {
		t.Fatalf("PtFromBytes: %v", err)
	}
	if !p.Equal(q) {
		t.Fatal("point did not round-trip through Bytes/PtFromBytes")
	}
}

func TestScalarFromHashDeterministic(t *testing.T) {
	var h [32]byte
	for i := range h {
		h[i] = byte(i)
	}
	a := ScalarFromHash(h)
	b := ScalarFromHash(h)
	if !a.Equal(b) {
		t.Fatal("ScalarFromHash is not deterministic")
	}
}

func TestDetrandAgreesOnSameInput(t *testing.T) {
	_, pk, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	chain, err := RandomFr()
	if err != nil {
		t.Fatalf("RandomFr: %v", err)
	}
	if !Detrand(pk, chain).Equal(Detrand(pk, chain)) {
		t.Fatal("Detrand not deterministic for identical input")
	}
}
