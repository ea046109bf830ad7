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

package pic

import "testing"

func TestMasterVector(t *testing.T) {
	d := &Device{}
	d.Reset()

	if _, err := d.GetInterrupt(); err != ErrNoInterrupts {
		t.Fatal("expected no pending interrupts after reset")
	}

	d.IRQ(5)
	n, err := d.GetInterrupt()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x08+5 {
		t.Errorf("vector = 0x%X, want 0xD", n)
	}
	if _, err := d.GetInterrupt(); err != ErrNoInterrupts {
		t.Error("request register not cleared")
	}
}

func TestSlaveCascade(t *testing.T) {
	d := &Device{}
	d.Reset()

	d.IRQ(12)
	n, err := d.GetInterrupt()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x70+4 {
		t.Errorf("vector = 0x%X, want 0x74", n)
	}
}

func TestPriorityOrder(t *testing.T) {
	d := &Device{}
	d.Reset()

	d.IRQ(6)
	d.IRQ(0)
	if n, _ := d.GetInterrupt(); n != 0x08 {
		t.Errorf("vector = 0x%X, want 0x8 first", n)
	}
	if n, _ := d.GetInterrupt(); n != 0x08+6 {
		t.Errorf("vector = 0x%X, want 0xE second", n)
	}
}

func TestMaskRegister(t *testing.T) {
	d := &Device{}
	d.Reset()

	d.Out(0x21, 1<<3) // mask line 3
	d.IRQ(3)
	if _, err := d.GetInterrupt(); err != ErrNoInterrupts {
		t.Error("masked line delivered an interrupt")
	}
	if got := d.In(0x21); got != 1<<3 {
		t.Errorf("IMR = 0x%X", got)
	}
}

func TestInitializationWords(t *testing.T) {
	d := &Device{}
	d.Reset()

	d.Out(0x20, 0x11) // ICW1, expect ICW4
	d.Out(0x21, 0x20) // ICW2: vector offset
	d.Out(0x21, 0x04) // ICW3
	d.Out(0x21, 0x01) // ICW4
	d.Out(0x21, 0x00) // OCW1: unmask everything

	d.IRQ(1)
	if n, _ := d.GetInterrupt(); n != 0x21 {
		t.Errorf("vector = 0x%X, want 0x21", n)
	}
}

func TestEndOfInterrupt(t *testing.T) {
	d := &Device{}
	d.Reset()

	d.IRQ(4)
	d.GetInterrupt()
	if d.master.isr == 0 {
		t.Fatal("ISR not set while in service")
	}
	d.Out(0x20, 0x20) // nonspecific EOI
	if d.master.isr != 0 {
		t.Error("EOI did not clear ISR")
	}
}
