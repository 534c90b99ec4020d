package mdi

import (
	"errors"
	"math"
	"net"
	"testing"
)

func newPipeComms(t *testing.T) (driver, engine *Comm) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return NewComm(a), NewComm(b)
}

func TestCommRequestExchange(t *testing.T) {
	driver, engine := newPipeComms(t)

	// Mock engine: answer <NATOMS with a single integer.
	go func() {
		cmd, err := engine.RecvCommand()
		if err != nil {
			t.Errorf("RecvCommand: %v", err)
			return
		}
		if cmd != CmdNAtoms {
			t.Errorf("command = %q, want %q", cmd, CmdNAtoms)
		}
		if err := engine.Send(Ints(42)); err != nil {
			t.Errorf("Send: %v", err)
		}
	}()

	if err := driver.SendCommand(CmdNAtoms); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	p, err := driver.Recv(Int, 1)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	n, err := p.Int(0)
	if err != nil {
		t.Fatalf("Int: %v", err)
	}
	if n != 42 {
		t.Errorf("natoms = %d, want 42", n)
	}
}

func TestCommPushExchange(t *testing.T) {
	driver, engine := newPipeComms(t)

	got := make(chan Payload, 1)
	go func() {
		if _, err := engine.RecvCommand(); err != nil {
			t.Errorf("RecvCommand: %v", err)
			return
		}
		p, err := engine.Recv(Int, 3)
		if err != nil {
			t.Errorf("Recv: %v", err)
			return
		}
		got <- p
	}()

	if err := driver.SendCommand(CmdProbes); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := driver.Send(Ints(4, 5, 6)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	p := <-got
	for i, want := range []int32{4, 5, 6} {
		if p.Ints[i] != want {
			t.Errorf("Ints[%d] = %d, want %d", i, p.Ints[i], want)
		}
	}
}

func TestCommRecvCountMismatch(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"fewer", Doubles(1, 2)},
		{"more", Doubles(1, 2, 3, 4)},
		{"wrong type", Ints(1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, engine := newPipeComms(t)
			go func() {
				engine.Send(tt.payload)
			}()

			_, err := driver.Recv(Double, 3)
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("Recv error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestCommRecvCommandFrameInsteadOfData(t *testing.T) {
	driver, engine := newPipeComms(t)
	go func() {
		engine.SendCommand(CmdForces)
	}()

	_, err := driver.Recv(Int, 1)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Recv error = %v, want ErrProtocol", err)
	}
}

func TestCommNoCommandsAfterExit(t *testing.T) {
	driver, engine := newPipeComms(t)
	go func() {
		engine.RecvCommand()
	}()

	if err := driver.SendCommand(CmdExit); err != nil {
		t.Fatalf("SendCommand(EXIT): %v", err)
	}

	if err := driver.SendCommand(CmdNAtoms); !errors.Is(err, ErrTransport) {
		t.Errorf("SendCommand after EXIT error = %v, want ErrTransport", err)
	}
	if err := driver.Send(Ints(1)); !errors.Is(err, ErrTransport) {
		t.Errorf("Send after EXIT error = %v, want ErrTransport", err)
	}
	if _, err := driver.Recv(Int, 1); !errors.Is(err, ErrTransport) {
		t.Errorf("Recv after EXIT error = %v, want ErrTransport", err)
	}
}

func TestCommClosedPeer(t *testing.T) {
	driver, engine := newPipeComms(t)
	engine.Close()

	if err := driver.SendCommand(CmdNAtoms); !errors.Is(err, ErrTransport) {
		t.Fatalf("SendCommand error = %v, want ErrTransport", err)
	}
}

func TestCommCommandTooLong(t *testing.T) {
	driver, _ := newPipeComms(t)

	long := make([]byte, MaxCommandLength+1)
	for i := range long {
		long[i] = 'A'
	}
	if err := driver.SendCommand(Command(long)); !errors.Is(err, ErrProtocol) {
		t.Fatalf("SendCommand error = %v, want ErrProtocol", err)
	}
}

func TestCommNonFiniteField(t *testing.T) {
	driver, engine := newPipeComms(t)

	errc := make(chan error, 1)
	go func() {
		errc <- engine.Send(Doubles(0, math.NaN(), math.Inf(1), math.Inf(-1), math.Copysign(0, -1), 1))
	}()

	p, err := driver.Recv(Double, 6)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !math.IsNaN(p.Doubles[1]) {
		t.Errorf("Doubles[1] = %v, want NaN", p.Doubles[1])
	}
	if !math.IsInf(p.Doubles[2], 1) || !math.IsInf(p.Doubles[3], -1) {
		t.Errorf("Doubles[2:4] = %v, want +Inf -Inf", p.Doubles[2:4])
	}
	if p.Doubles[4] != 0 || !math.Signbit(p.Doubles[4]) {
		t.Errorf("Doubles[4] = %v, want -0", p.Doubles[4])
	}
}

func TestCommSendOversizedIsProtocolError(t *testing.T) {
	driver, _ := newPipeComms(t)

	err := driver.Send(Payload{Type: Char, Chars: make([]byte, MaxFrameSize)})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Send error = %v, want ErrProtocol", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Errorf("Send error = %v, should not be ErrTransport", err)
	}
}
