package ring

import (
	"testing"
	"time"
)

func TestNewOverlayIsSingletonRing(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	o := NewOverlay(self)

	if o.Successor() != self {
		t.Errorf("successor = %v, want self", o.Successor())
	}
	if o.Predecessor() != nil {
		t.Errorf("predecessor = %v, want nil", o.Predecessor())
	}
}

func TestIsResponsibleNoPredecessor(t *testing.T) {
	o := NewOverlay(NewPeer("127.0.0.1", 5000))
	for _, k := range []string{"foo", "bar", "anything"} {
		if !o.IsResponsible(Hash(k)) {
			t.Errorf("with no predecessor, should be responsible for %q", k)
		}
	}
}

func TestIsResponsibleEdges(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	pred := NewPeer("127.0.0.1", 5001)
	o := NewOverlay(self)
	o.SetPredecessor(pred)

	if !o.IsResponsible(self.ID) {
		t.Error("should be responsible for self.ID")
	}
	if o.IsResponsible(pred.ID) {
		t.Error("should not be responsible for predecessor.ID (half-open lower bound)")
	}
}

func TestHandleSuccessorFailureCollapsesRing(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	other := NewPeer("127.0.0.1", 5001)
	o := NewOverlay(self)
	o.SetSuccessor(other)

	o.HandleSuccessorFailure()

	if o.Successor() != self {
		t.Errorf("successor = %v, want self after failure", o.Successor())
	}
}

func TestHandleSuccessorFailureNoopWhenSelf(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	o := NewOverlay(self)
	o.HandleSuccessorFailure()
	if o.Successor() != self {
		t.Fatalf("successor changed unexpectedly: %v", o.Successor())
	}
}

func TestPredecessorSilentForTimeout(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	pred := NewPeer("127.0.0.1", 5001)
	o := NewOverlay(self)

	if o.PredecessorSilentFor(time.Millisecond) {
		t.Fatal("no predecessor yet — should never be reported silent")
	}

	o.SetPredecessor(pred)
	if o.PredecessorSilentFor(time.Hour) {
		t.Fatal("freshly set predecessor should not be silent")
	}
	time.Sleep(2 * time.Millisecond)
	if !o.PredecessorSilentFor(time.Millisecond) {
		t.Fatal("predecessor should now be reported silent")
	}
}

func TestLeaveProducesRedirectsOnlyWithBothNeighbors(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	o := NewOverlay(self)

	if notes := o.Leave(); notes != nil {
		t.Fatalf("singleton ring should produce no leave notifications, got %v", notes)
	}

	succ := NewPeer("127.0.0.1", 5001)
	pred := NewPeer("127.0.0.1", 5002)
	o.SetSuccessor(succ)
	o.SetPredecessor(pred)

	notes := o.Leave()
	if len(notes) != 2 {
		t.Fatalf("len(notes) = %d, want 2", len(notes))
	}
	if notes[0].Target != succ || notes[0].Role != "predecessor" || notes[0].Peer != pred {
		t.Errorf("successor notification = %+v", notes[0])
	}
	if notes[1].Target != pred || notes[1].Role != "successor" || notes[1].Peer != succ {
		t.Errorf("predecessor notification = %+v", notes[1])
	}
}

func TestShouldSpliceSingletonAlwaysTrue(t *testing.T) {
	self := NewPeer("127.0.0.1", 5000)
	o := NewOverlay(self)
	candidate := NewPeer("127.0.0.1", 5001)
	if !o.ShouldSplice(candidate) {
		t.Fatal("singleton ring should always splice the first joiner")
	}
}
