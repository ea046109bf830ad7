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
	"sync"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

const bufferSize = 16

// Device is the 8042 keyboard controller at ports 0x60/0x64. Besides the
// scan-code path it owns two side channels the rest of the machine depends
// on: the A20 gate (output port bit 1, mirrored by port 0x92) and the
// reset pulse (command 0xFE).
type Device struct {
	lock sync.Mutex

	status      byte
	command     byte
	commandByte byte
	outputPort  byte
	inputPort   byte
	port92      byte

	buffer       [bufferSize]byte
	head, tail   int
	outputBuffer byte

	p   processor.Processor
	pic processor.InterruptController
	a20 *memory.A20Gate
}

func (m *Device) Install(p processor.Processor) error {
	m.p = p
	m.pic = p.GetInterruptController()
	m.a20 = p.GetA20Gate()
	return p.InstallIODeviceAt(m, 0x60, 0x64, 0x92)
}

func (m *Device) Name() string {
	return "Keyboard Controller (Intel 8042)"
}

func (m *Device) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.status = 0x14
	m.command = 0
	m.commandByte = 0x45
	m.outputPort = 0xDD
	m.inputPort = 0x01
	m.port92 = 0
	m.head, m.tail = 0, 0
	m.outputBuffer = 0
	if m.a20 != nil {
		m.a20.Enabled = false
	}
}

func (m *Device) Step(int) error {
	return nil
}

// PushScancode queues a scan code from the host console. A full buffer
// drops the code.
func (m *Device) PushScancode(code byte) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.send(code)
}

func (m *Device) send(code byte) {
	next := (m.head + 1) % bufferSize
	if next == m.tail {
		return
	}
	m.buffer[m.head] = code
	m.head = next

	if m.status&1 == 0 {
		m.outputBuffer = code
		m.status |= 1
		if m.commandByte&1 != 0 {
			m.pic.IRQ(1)
		}
	}
}

func (m *Device) In(port uint16) byte {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch port {
	case 0x64:
		return m.status
	case 0x60:
		data := m.outputBuffer
		if m.head != m.tail {
			m.outputBuffer = m.buffer[m.tail]
			m.tail = (m.tail + 1) % bufferSize
		} else {
			m.status &^= 1
		}
		if m.head != m.tail && m.commandByte&1 != 0 {
			m.pic.IRQ(1)
		}
		m.status &^= 1
		return data
	case 0x92:
		return m.port92
	}
	return 0xFF
}

func (m *Device) Out(port uint16, data byte) {
	m.lock.Lock()

	switch port {
	case 0x64:
		m.status |= 2
		m.command = data

		switch data {
		case 0x20: // read command byte
			m.send(m.commandByte)
		case 0xAA: // self test
			m.send(0x55)
		case 0xAD: // disable first port
			m.commandByte |= 0x10
		case 0xAE: // enable first port
			m.commandByte &^= 0x10
		case 0xA7: // disable second port
			m.commandByte |= 0x20
		case 0xA8: // enable second port
			m.commandByte &^= 0x20
		case 0xC0: // read input port
			m.send(0x00)
		case 0xD0: // read output port
			m.send(m.outputPort)
		case 0xE0: // read test inputs
			m.send(0x00)
		case 0xFE: // pulse reset line
			m.lock.Unlock()
			m.p.Reset()
			return
		}

		if data != 0x60 && data != 0xD1 && data != 0xD3 && data != 0xD4 {
			m.status &^= 2
		}
	case 0x60:
		if m.command != 0 {
			switch m.command {
			case 0x60: // write command byte
				m.commandByte = data
			case 0xD1: // write output port; bit 1 is the A20 line
				m.outputPort = data
				m.a20.Enabled = data>>1&1 != 0
			case 0xD3: // write to second port output
			case 0xD4: // write to keyboard device
				m.send(0xFA)
				if data == 0xFF { // device reset
					m.send(0xAA)
					m.send(0x00)
				}
			}
			m.command = 0
			m.status &^= 2
		} else {
			m.send(0xFA)
		}
	case 0x92:
		m.port92 = data
		m.a20.Enabled = data>>1&1 != 0
	}

	m.lock.Unlock()
}
