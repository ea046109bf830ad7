/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package keyboard

import (
	"testing"

	"github.com/andreas-jonsson/virtual286/emulator/peripheral"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtual286/emulator/processor/cpu"
)

func newTestMachine() (*cpu.CPU, *Device, *pic.Device) {
	intCtrl := &pic.Device{}
	kbc := &Device{}
	p := cpu.NewCPU([]peripheral.Peripheral{intCtrl, kbc})
	p.Reset()
	return p, kbc, intCtrl
}

func TestSelfTest(t *testing.T) {
	_, kbc, _ := newTestMachine()

	kbc.Out(0x64, 0xAA)
	if got := kbc.In(0x60); got != 0x55 {
		t.Errorf("self test response = 0x%X, want 0x55", got)
	}
}

func TestCommandByteReadback(t *testing.T) {
	_, kbc, _ := newTestMachine()

	kbc.Out(0x64, 0x20)
	if got := kbc.In(0x60); got != 0x45 {
		t.Errorf("command byte = 0x%X, want 0x45", got)
	}

	kbc.Out(0x64, 0x60)
	kbc.Out(0x60, 0x47)
	kbc.Out(0x64, 0x20)
	if got := kbc.In(0x60); got != 0x47 {
		t.Errorf("command byte = 0x%X, want 0x47", got)
	}
}

func TestPortDisableBits(t *testing.T) {
	_, kbc, _ := newTestMachine()

	kbc.Out(0x64, 0xAD)
	kbc.Out(0x64, 0x20)
	if got := kbc.In(0x60); got&0x10 == 0 {
		t.Errorf("command byte = 0x%X, want bit 4 set", got)
	}

	kbc.Out(0x64, 0xAE)
	kbc.Out(0x64, 0x20)
	if got := kbc.In(0x60); got&0x10 != 0 {
		t.Errorf("command byte = 0x%X, want bit 4 clear", got)
	}
}

func TestA20Gate(t *testing.T) {
	p, kbc, _ := newTestMachine()
	a20 := p.GetA20Gate()

	if a20.Enabled {
		t.Fatal("A20 open after reset")
	}

	kbc.Out(0x64, 0xD1)
	kbc.Out(0x60, 0x02)
	if !a20.Enabled {
		t.Error("output port bit 1 did not open A20")
	}

	kbc.Out(0x64, 0xD1)
	kbc.Out(0x60, 0x00)
	if a20.Enabled {
		t.Error("output port write did not close A20")
	}

	kbc.Out(0x92, 0x02)
	if !a20.Enabled {
		t.Error("port 0x92 did not open A20")
	}
}

func TestOutputPortReadback(t *testing.T) {
	_, kbc, _ := newTestMachine()

	kbc.Out(0x64, 0xD0)
	if got := kbc.In(0x60); got != 0xDD {
		t.Errorf("output port = 0x%X, want 0xDD", got)
	}
}

func TestResetPulse(t *testing.T) {
	p, kbc, _ := newTestMachine()
	r := p.GetRegisters()
	r.CS, r.IP = 0x1234, 0x5678

	kbc.Out(0x64, 0xFE)

	if r.CS != 0xF000 || r.IP != 0xFFF0 {
		t.Errorf("CS:IP = 0x%X:0x%X, want reset vector", r.CS, r.IP)
	}
}

func TestScancodeQueueRaisesIRQ1(t *testing.T) {
	_, kbc, intCtrl := newTestMachine()

	kbc.PushScancode(0x1C)
	if kbc.In(0x64)&1 == 0 {
		t.Error("output buffer full bit not set")
	}
	if n, err := intCtrl.GetInterrupt(); err != nil || n != 0x09 {
		t.Errorf("interrupt = %d, %v, want IRQ1 vector 9", n, err)
	}
	if got := kbc.In(0x60); got != 0x1C {
		t.Errorf("scan code = 0x%X, want 0x1C", got)
	}
}

func TestDeviceResetCommand(t *testing.T) {
	_, kbc, _ := newTestMachine()

	kbc.Out(0x64, 0xD4)
	kbc.Out(0x60, 0xFF)

	// The first queued byte is latched in the output buffer as well as the
	// ring, so it reads back twice.
	want := []byte{0xFA, 0xFA, 0xAA, 0x00}
	for i, w := range want {
		if got := kbc.In(0x60); got != w {
			t.Errorf("response %d = 0x%X, want 0x%X", i, got, w)
		}
	}
}
