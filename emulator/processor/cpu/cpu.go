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
	"errors"
	"log"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

const MaxPeripherals = 32

const (
	segES = iota
	segCS
	segSS
	segDS
)

type descriptorTable struct {
	base  uint32
	limit uint16
}

// descriptorCache mirrors the hidden part of a segment register. sp0/ss0
// are only populated for the task-register cache.
type descriptorCache struct {
	base     uint32
	limit    uint16
	access   byte
	valid    bool
	sp0, ss0 uint16
}

type instructionState struct {
	opcode, modRegRM byte
	mode, reg, rm    byte
	disp16           uint16

	repeatMode  byte // 0, 0xF3 or 0xF2
	segOverride bool
	useSeg      uint16

	firstIP        uint16
	saveIP, saveCS uint16
	ea             memory.Pointer
	cycleCount     int
}

type CPU struct {
	processor.Registers
	instructionState

	msw           uint16
	protectedMode bool
	gdtr, idtr    descriptorTable
	ldtr, tr      uint16
	segCache      [4]descriptorCache
	ldtrCache     descriptorCache
	trCache       descriptorCache

	faultInFlight       bool
	doubleFaultInFlight bool
	halted              bool
	trapToggle          bool

	fpu fpuState
	a20 memory.A20Gate

	stats        processor.Stats
	peripherals  []peripheral.Peripheral
	pic          processor.InterruptController
	interceptors [0x100]processor.InterruptHandler

	iomap         [0x10000]byte
	ioPeripherals [MaxPeripherals]memory.IO

	mmap           [memory.PointerMask + 1]byte
	memPeripherals [MaxPeripherals]memory.Memory
}

func NewCPU(peripherals []peripheral.Peripheral) *CPU {
	p := &CPU{peripherals: peripherals}

	dummyIO := &memory.DummyIO{}
	for i := range p.ioPeripherals[:] {
		p.ioPeripherals[i] = dummyIO
	}

	dummyMem := &memory.DummyMemory{}
	for i := range p.memPeripherals[:] {
		p.memPeripherals[i] = dummyMem
	}

	for i := 1; i <= len(peripherals); i++ {
		if dev, ok := peripherals[i-1].(memory.IO); ok {
			p.ioPeripherals[i] = dev
		}
		if dev, ok := peripherals[i-1].(memory.Memory); ok {
			p.memPeripherals[i] = dev
		}
	}

	p.installPeripherals()
	return p
}

func (p *CPU) installPeripherals() {
	for _, d := range p.peripherals {
		if err := d.Install(p); err != nil {
			log.Print("Failed to install peripheral: ", err)
		}
		if pic, ok := d.(processor.InterruptController); ok {
			p.pic = pic
		}
	}
	if p.pic == nil {
		log.Print("No interrupt controller detected!")
	}
}

func (p *CPU) Close() {
	for _, d := range p.peripherals {
		if cd, b := d.(peripheral.PeripheralCloser); b {
			if err := cd.Close(); err != nil {
				log.Print("Failed to close peripheral: ", err)
			}
		}
	}
}

func (p *CPU) Break() {
	p.Registers.Debug = true
}

func (p *CPU) GetStats() processor.Stats {
	s := p.stats
	p.stats = processor.Stats{}
	return s
}

func (p *CPU) GetInterruptController() processor.InterruptController {
	return p.pic
}

// Reset puts the CPU in the power-on state. It is also the target of a
// triple fault and of keyboard-controller command 0xFE.
func (p *CPU) Reset() {
	log.Print("CPU reset!")

	p.Registers = processor.Registers{CS: 0xF000, IP: 0xFFF0}
	p.interceptors = [0x100]processor.InterruptHandler{}
	p.segCache = [4]descriptorCache{}
	p.ldtrCache = descriptorCache{}
	p.trCache = descriptorCache{}
	p.msw = 0xFFF0
	p.gdtr = descriptorTable{limit: 0xFFFF}
	p.idtr = descriptorTable{limit: 0x03FF}
	p.ldtr, p.tr = 0, 0
	p.protectedMode = false
	p.faultInFlight = false
	p.doubleFaultInFlight = false
	p.halted = false
	p.trapToggle = false
	p.a20.Enabled = false
	p.fpuInit()

	for _, d := range p.peripherals {
		d.Reset()
	}
}

func (p *CPU) GetMappedMemoryDevice(addr memory.Pointer) memory.Memory {
	return p.memPeripherals[p.mmap[addr]]
}

func (p *CPU) GetMappedIODevice(port uint16) memory.IO {
	return p.ioPeripherals[p.iomap[port]]
}

func (p *CPU) GetRegisters() *processor.Registers {
	return &p.Registers
}

func (p *CPU) GetA20Gate() *memory.A20Gate {
	return &p.a20
}

func (p *CPU) InByte(port uint16) byte {
	p.stats.RX++
	return p.GetMappedIODevice(port).In(port)
}

func (p *CPU) OutByte(port uint16, data byte) {
	p.stats.TX++
	p.GetMappedIODevice(port).Out(port, data)
}

func (p *CPU) InWord(port uint16) uint16 {
	return uint16(p.InByte(port)) | (uint16(p.InByte(port+1)) << 8)
}

func (p *CPU) OutWord(port uint16, data uint16) {
	p.OutByte(port, byte(data&0xFF))
	p.OutByte(port+1, byte(data>>8))
}

// The bus consults the A20 gate on every access. With the gate closed the
// address wraps at 1MB, as on a machine with the line held low.
func (p *CPU) ReadByte(addr memory.Pointer) byte {
	p.stats.RX++
	addr = p.a20.Mask(addr)
	return p.GetMappedMemoryDevice(addr).ReadByte(addr)
}

func (p *CPU) WriteByte(addr memory.Pointer, data byte) {
	p.stats.TX++
	addr = p.a20.Mask(addr)
	p.GetMappedMemoryDevice(addr).WriteByte(addr, data)
}

func (p *CPU) ReadWord(addr memory.Pointer) uint16 {
	return uint16(p.ReadByte(addr)) | (uint16(p.ReadByte(addr+1)) << 8)
}

func (p *CPU) WriteWord(addr memory.Pointer, data uint16) {
	p.WriteByte(addr, byte(data&0xFF))
	p.WriteByte(addr+1, byte(data>>8))
}

func (p *CPU) InstallInterruptHandler(num int, handler processor.InterruptHandler) error {
	if num > 0xFF {
		return errors.New("invalid interrupt number")
	}
	p.interceptors[num] = handler
	return nil
}

func (p *CPU) InstallMemoryDevice(device memory.Memory, from, to memory.Pointer) error {
	for i, d := range p.memPeripherals[:] {
		if d == device {
			for from <= to {
				p.mmap[from] = byte(i)
				from++
			}
			return nil
		}
	}
	return errors.New("could not find peripheral")
}

func (p *CPU) InstallMemoryDeviceAt(device memory.Memory, addr ...memory.Pointer) error {
	for _, a := range addr {
		if err := p.InstallMemoryDevice(device, a, a); err != nil {
			return err
		}
	}
	return nil
}

func (p *CPU) InstallIODevice(device memory.IO, from, to uint16) error {
	for i, d := range p.ioPeripherals[:] {
		if d == device {
			for from <= to {
				p.iomap[from] = byte(i)
				if from == 0xFFFF {
					break
				}
				from++
			}
			return nil
		}
	}
	return errors.New("could not find peripheral")
}

func (p *CPU) InstallIODeviceAt(device memory.IO, port ...uint16) error {
	for _, a := range port {
		if err := p.InstallIODevice(device, a, a); err != nil {
			return err
		}
	}
	return nil
}
