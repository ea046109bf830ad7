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

package cpu

import (
	"log"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

func isFaultVector(n int) bool {
	return n == 8 || (n >= 10 && n <= 13)
}

// doInterrupt delivers a software, hardware or fault interrupt through the
// current mode's gate mechanism. A fault raised while another fault is
// still on its way to the handler escalates to a double fault, and a
// double fault in that window resets the machine.
func (p *CPU) doInterrupt(n int) {
	p.stats.NumInterrupts++

	if p.faultInFlight {
		if n == 8 || p.doubleFaultInFlight {
			log.Print("Triple fault! Resetting machine.")
			p.Reset()
			return
		}
		log.Printf("Double fault! (INT 0x%X while another fault is in flight)", n)
		p.doubleFaultInFlight = true
		n = 8
	}

	if isFaultVector(n) {
		p.faultInFlight = true
	}

	if handler := p.interceptors[n]; handler != nil {
		if err := handler.HandleInterrupt(n); err == nil {
			p.faultInFlight = false
			p.doubleFaultInFlight = false
			return
		} else if err != processor.ErrInterruptNotHandled {
			log.Panic(err)
		}
	}

	if p.protectedMode {
		p.protectedInterrupt(n)
		return
	}

	p.push16(p.packFlags16())
	p.IF, p.TF = false, false
	p.push16(p.CS)
	p.push16(p.IP)
	p.CS = p.ReadWord(memory.Pointer(n*4 + 2))
	p.IP = p.ReadWord(memory.Pointer(n * 4))
	p.faultInFlight = false
	p.doubleFaultInFlight = false
}

func (p *CPU) protectedInterrupt(n int) {
	gateOffset := uint32(n * 8)
	if gateOffset+7 > uint32(p.idtr.limit) {
		log.Printf("DF(8): INT 0x%X is outside the IDT limit", n)
		p.doInterrupt(8)
		return
	}

	gateAddr := memory.Pointer(p.idtr.base + gateOffset)
	access := p.ReadByte(gateAddr + 5)

	if access&0x80 == 0 {
		log.Printf("NP(11): gate for INT 0x%X is not present", n)
		p.doInterrupt(11)
		return
	}

	newIP := p.ReadWord(gateAddr)
	newCS := p.ReadWord(gateAddr + 2)
	gateType := access & 0x1F

	_, _, targetAccess, ok := p.descriptorInfo(newCS)
	if !ok {
		log.Printf("GP(13): invalid CS selector 0x%X in gate for INT 0x%X", newCS, n)
		p.doInterrupt(13)
		return
	}

	targetDPL := uint16(targetAccess>>5) & 3
	cpl := p.CS & 3

	oldFlags := p.packFlags16()
	oldCS, oldIP := p.CS, p.IP

	if targetDPL < cpl {
		// Inner privilege transition; switch to the level 0 stack from
		// the task state segment.
		if !p.trCache.valid {
			log.Printf("DF(8): no valid TSS during privilege change for INT 0x%X", n)
			p.doInterrupt(8)
			return
		}
		oldSS, oldSP := p.SS, p.SP

		p.loadDescriptor(segSS, p.trCache.ss0)
		p.SS = p.trCache.ss0
		p.SP = p.trCache.sp0

		p.push16(oldSS)
		p.push16(oldSP)
	}

	p.push16(oldFlags)
	p.push16(oldCS)
	p.push16(oldIP)
	if isFaultVector(n) {
		p.push16(0) // error code
	}

	if !p.loadDescriptor(segCS, newCS) {
		return
	}
	p.CS = newCS
	p.IP = newIP

	p.TF = false
	if gateType == 0x06 { // interrupt gate
		p.IF = false
	}
	p.faultInFlight = false
	p.doubleFaultInFlight = false
}
