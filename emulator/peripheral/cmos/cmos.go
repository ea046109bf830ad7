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
	"time"

	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

const (
	BaseMemoryKB     = 640
	ExtendedMemoryKB = 15 * 1024
)

// Device is the AT real-time clock with its 128 bytes of battery backed
// CMOS RAM, at ports 0x70/0x71. Time registers read straight from the host
// clock in BCD.
type Device struct {
	index   byte
	nmiMask bool
	ram     [128]byte
}

func toBCD(v int) byte {
	return byte(v/10<<4 | v%10)
}

func (m *Device) Install(p processor.Processor) error {
	return p.InstallIODevice(m, 0x70, 0x71)
}

func (m *Device) Name() string {
	return "Real Time Clock (CMOS)"
}

func (m *Device) Reset() {
	*m = Device{}

	m.ram[0x0A] = 0x26
	m.ram[0x0B] = 0x02
	m.ram[0x0D] = 0x80

	m.ram[0x10] = 0x40 // one 1.44MB floppy
	m.ram[0x12] = 18
	m.ram[0x14] = 0x25 // equipment byte
	m.ram[0x19] = 18
	m.ram[0x1A] = 18

	m.ram[0x15] = BaseMemoryKB & 0xFF
	m.ram[0x16] = BaseMemoryKB >> 8

	m.ram[0x17] = ExtendedMemoryKB & 0xFF
	m.ram[0x18] = ExtendedMemoryKB >> 8 & 0xFF
	m.ram[0x30] = ExtendedMemoryKB & 0xFF
	m.ram[0x31] = ExtendedMemoryKB >> 8 & 0xFF

	m.updateChecksum()
}

func (m *Device) Step(int) error {
	return nil
}

// updateChecksum recomputes the standard checksum over 0x10-0x2D, stored
// big-endian at 0x2E/0x2F.
func (m *Device) updateChecksum() {
	var sum uint16
	for i := 0x10; i <= 0x2D; i++ {
		sum += uint16(m.ram[i])
	}
	m.ram[0x2E] = byte(sum >> 8)
	m.ram[0x2F] = byte(sum)
}

func (m *Device) In(port uint16) byte {
	if port != 0x71 {
		return 0xFF
	}

	now := time.Now()

	switch m.index {
	case 0x00:
		return toBCD(now.Second())
	case 0x02:
		return toBCD(now.Minute())
	case 0x04:
		return toBCD(now.Hour())
	case 0x06:
		return toBCD(int(now.Weekday()) + 1)
	case 0x07:
		return toBCD(now.Day())
	case 0x08:
		return toBCD(int(now.Month()))
	case 0x09:
		return toBCD(now.Year() % 100)
	case 0x0A:
		return 0x26
	case 0x0B:
		return 0x02
	case 0x0C: // read clears the interrupt flags
		v := m.ram[0x0C]
		m.ram[0x0C] = 0
		return v
	case 0x0D:
		return 0x80
	default:
		return m.ram[m.index]
	}
}

func (m *Device) Out(port uint16, data byte) {
	switch port {
	case 0x70:
		m.index = data & 0x7F
		m.nmiMask = data&0x80 != 0
	case 0x71:
		m.ram[m.index] = data
		if m.index >= 0x10 && m.index <= 0x2D {
			m.updateChecksum()
		}
	}
}
