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

package himem

import (
	"log"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

// Device services the extended-memory functions of INT 15h at a high
// level, standing in for a 286 BIOS we can not run yet.
type Device struct {
	p processor.Processor
}

func (m *Device) Install(p processor.Processor) error {
	m.p = p
	return p.InstallInterruptHandler(0x15, m)
}

func (m *Device) Name() string {
	return "Extended Memory Services (INT 15h)"
}

func (m *Device) Reset() {
	// The interceptor table is cleared by a CPU reset.
	if m.p != nil {
		m.p.InstallInterruptHandler(0x15, m)
	}
}

func (m *Device) Step(int) error {
	return nil
}

func (m *Device) HandleInterrupt(int) error {
	r := m.p.GetRegisters()

	switch r.AH() {
	case 0x88: // get extended memory size
		r.AX = 15360
		r.CF = false
		return nil
	case 0x87: // block move
		count := uint32(r.CX)
		table := memory.NewAddress(r.ES, r.SI).Pointer()

		src := read24(m.p, table+10)
		dst := read24(m.p, table+18)
		log.Printf("INT 15h block move: %d words from 0x%X to 0x%X", count, src, dst)

		for i := uint32(0); i < count*2; i++ {
			m.p.WriteByte(memory.Pointer(dst+i), m.p.ReadByte(memory.Pointer(src+i)))
		}

		r.CF = false
		r.SetAH(0)
		r.ZF = true
		return nil
	}
	return processor.ErrInterruptNotHandled
}

func read24(p processor.Processor, addr memory.Pointer) uint32 {
	return uint32(p.ReadByte(addr)) | uint32(p.ReadByte(addr+1))<<8 | uint32(p.ReadByte(addr+2))<<16
}
