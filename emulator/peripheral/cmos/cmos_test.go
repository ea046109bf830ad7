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

package cmos

import (
	"testing"
	"time"
)

func newDevice() *Device {
	d := &Device{}
	d.Reset()
	return d
}

func (m *Device) readReg(index byte) byte {
	m.Out(0x70, index)
	return m.In(0x71)
}

func TestStatusRegisters(t *testing.T) {
	d := newDevice()

	if got := d.readReg(0x0A); got != 0x26 {
		t.Errorf("register 0x0A = 0x%X, want 0x26", got)
	}
	if got := d.readReg(0x0B); got != 0x02 {
		t.Errorf("register 0x0B = 0x%X, want 0x02", got)
	}
	if got := d.readReg(0x0D); got != 0x80 {
		t.Errorf("register 0x0D = 0x%X, want 0x80", got)
	}
}

func TestRegisterCReadAndClear(t *testing.T) {
	d := newDevice()

	d.Out(0x70, 0x0C)
	d.ram[0x0C] = 0x40
	if got := d.In(0x71); got != 0x40 {
		t.Fatalf("register 0x0C = 0x%X, want 0x40", got)
	}
	if got := d.In(0x71); got != 0 {
		t.Errorf("register 0x0C after read = 0x%X, want 0", got)
	}
}

func TestMemorySizeRegisters(t *testing.T) {
	d := newDevice()

	base := int(d.readReg(0x15)) | int(d.readReg(0x16))<<8
	if base != BaseMemoryKB {
		t.Errorf("base memory = %dKB, want %d", base, BaseMemoryKB)
	}

	ext := int(d.readReg(0x17)) | int(d.readReg(0x18))<<8
	if ext != ExtendedMemoryKB {
		t.Errorf("extended memory = %dKB, want %d", ext, ExtendedMemoryKB)
	}
	if got := int(d.readReg(0x30)) | int(d.readReg(0x31))<<8; got != ext {
		t.Errorf("register 0x30/0x31 = %d, want %d", got, ext)
	}
}

func TestChecksumUpdate(t *testing.T) {
	d := newDevice()

	d.Out(0x70, 0x20)
	d.Out(0x71, 0x55)

	var sum uint16
	for i := 0x10; i <= 0x2D; i++ {
		sum += uint16(d.ram[i])
	}
	if got := uint16(d.readReg(0x2E))<<8 | uint16(d.readReg(0x2F)); got != sum {
		t.Errorf("checksum = 0x%X, want 0x%X", got, sum)
	}
}

func TestTimeIsBCD(t *testing.T) {
	d := newDevice()

	now := time.Now()
	sec := d.readReg(0x00)
	if hi, lo := sec>>4, sec&0xF; hi > 5 || lo > 9 {
		t.Errorf("seconds not BCD: 0x%X", sec)
	}

	day := d.readReg(0x07)
	want := toBCD(now.Day())
	// Allow a midnight rollover between the two reads.
	if day != want && day != toBCD(time.Now().Day()) {
		t.Errorf("day = 0x%X, want 0x%X", day, want)
	}
}
